package logic

import (
	"sync/atomic"
	"time"

	"github.com/sweeney/fuel-kiosk/internal/pricing"
	"github.com/sweeney/fuel-kiosk/internal/telemetry"
)

// Machine drives one dispenser through Idle → Active → Settling → Idle.
// Process must only be called from a single goroutine (the control loop);
// SetPolicy may be called from any goroutine.
type Machine struct {
	policy  atomic.Pointer[pricing.Policy]
	ambient Ambient
	store   *telemetry.Store
	timing  Timing

	state       State
	outcome     Outcome
	start       time.Time // dispense start, valid while Active
	settleUntil time.Time // valid while Settling

	startTime     time.Time
	lastHeartbeat time.Time
}

// NewMachine creates a machine in the Idle state. Finished dispenses are
// priced with policy and appended to store.
func NewMachine(policy pricing.Policy, ambient Ambient, store *telemetry.Store, timing Timing, startTime time.Time) *Machine {
	m := &Machine{
		ambient:       ambient,
		store:         store,
		timing:        timing,
		state:         StateIdle,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
	m.policy.Store(&policy)
	store.SetStatus(telemetry.StatusWaiting)
	return m
}

// SetPolicy replaces the pricing policy. A dispense in progress is priced
// with whichever policy is current when it ends.
func (m *Machine) SetPolicy(p pricing.Policy) {
	m.policy.Store(&p)
}

// Policy returns the current pricing policy.
func (m *Machine) Policy() pricing.Policy {
	return *m.policy.Load()
}

// Process evaluates one tick and returns the resulting events (at most one).
func (m *Machine) Process(in Input) []Event {
	switch m.state {
	case StateActive:
		// Tilt is checked before nozzle removal.
		if in.Tilt {
			return []Event{m.finish(in.Time, true)}
		}
		if !in.Magnet {
			return []Event{m.finish(in.Time, false)}
		}

	case StateIdle:
		if in.Magnet {
			m.state = StateActive
			m.outcome = OutcomeNone
			m.start = in.Time
			m.store.SetStatus(telemetry.StatusFueling)
			return []Event{{
				Timestamp: in.Time,
				Type:      EventDispenseStarted,
				State:     m.state,
				Status:    telemetry.StatusFueling,
				Signal:    SignalInProgress,
			}}
		}

	case StateSettling:
		if !in.Time.Before(m.settleUntil) {
			m.state = StateIdle
			m.outcome = OutcomeNone
			m.settleUntil = time.Time{}
			m.store.SetStatus(telemetry.StatusWaiting)
			return []Event{{
				Timestamp: in.Time,
				Type:      EventReady,
				State:     m.state,
				Status:    telemetry.StatusWaiting,
				Signal:    SignalWaiting,
			}}
		}
	}

	return nil
}

// finish prices and records the active dispense and moves to Settling.
func (m *Machine) finish(now time.Time, aborted bool) Event {
	policy := m.Policy()
	elapsed := now.Sub(m.start)
	if elapsed < 0 {
		elapsed = 0
	}

	temp, tempErr := m.ambient.ReadTemperature()
	temperature := policy.Temperature(temp, tempErr)
	quote := policy.Compute(elapsed.Seconds(), temperature, m.ambient.ReadLightLevel())

	ev := Event{
		Timestamp: now,
		State:     StateSettling,
		Signal:    SignalStopped,
	}
	if aborted {
		m.outcome = OutcomeAbort
		m.settleUntil = now.Add(m.timing.AbortHold)
		ev.Type = EventDispenseAborted
		ev.Status = telemetry.StatusTiltAbort
	} else {
		m.outcome = OutcomeComplete
		m.settleUntil = now.Add(m.timing.Celebration + m.timing.CompleteHold)
		ev.Type = EventDispenseCompleted
		ev.Status = telemetry.StatusComplete
		ev.Celebrate = true
	}

	sess := m.store.FinishSession(telemetry.Record{
		Liters:       quote.Liters,
		Price:        quote.Price,
		Dark:         quote.Dark,
		Aborted:      aborted,
		Duration:     elapsed,
		Temperature:  temperature,
		TempFallback: tempErr != nil,
		EndedAt:      now,
	}, ev.Status)
	ev.Session = &sess

	m.state = StateSettling
	m.start = time.Time{}
	return ev
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Outcome returns how the last dispense ended while Settling, OutcomeNone otherwise.
func (m *Machine) Outcome() Outcome {
	return m.outcome
}

// SettleUntil returns when the machine may return to Idle. Zero unless Settling.
func (m *Machine) SettleUntil() time.Time {
	return m.settleUntil
}

// DispenseStart returns the start of the active dispense and true, or false
// if no dispense is in progress.
func (m *Machine) DispenseStart() (time.Time, bool) {
	if m.state != StateActive {
		return time.Time{}, false
	}
	return m.start, true
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (m *Machine) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(m.lastHeartbeat) < interval {
		return nil
	}

	m.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(m.startTime),
		State:     m.state,
	}
}
