// Package logic contains the fueling state machine.
// It does no GPIO, MQTT or network I/O and never sleeps: time is always
// injected via Input.Time, and hardware side effects are returned as Events
// for the control loop to carry out.
package logic

import (
	"time"

	"github.com/sweeney/fuel-kiosk/internal/telemetry"
)

// State is the dispense lifecycle state.
type State string

const (
	StateIdle     State = "IDLE"
	StateActive   State = "ACTIVE"
	StateSettling State = "SETTLING"
)

// Outcome records how the last dispense ended. Only meaningful while Settling.
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeComplete Outcome = "COMPLETE"
	OutcomeAbort    Outcome = "ABORT"
)

// Signal is the indicator pattern the kiosk should show.
type Signal string

const (
	SignalWaiting    Signal = "WAITING"     // yellow
	SignalInProgress Signal = "IN_PROGRESS" // green
	SignalStopped    Signal = "STOPPED"     // red
)

// EventType identifies a state transition.
type EventType string

const (
	EventDispenseStarted   EventType = "DISPENSE_STARTED"
	EventDispenseCompleted EventType = "DISPENSE_COMPLETED"
	EventDispenseAborted   EventType = "DISPENSE_ABORTED"
	EventReady             EventType = "READY"
)

// Event is a transition the control loop must act on.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State  // state after the transition
	Status    string // status text written to the ledger
	Signal    Signal
	Celebrate bool               // run the completion blink after applying Signal
	Session   *telemetry.Session // set for completed and aborted dispenses
}

// Input is a single sample of the digital inputs.
type Input struct {
	Magnet bool // nozzle in tank (already converted from active-low)
	Tilt   bool
	Time   time.Time
}

// Ambient supplies the conditions a dispense is priced under. It is read
// once, when the dispense ends.
type Ambient interface {
	ReadLightLevel() int
	ReadTemperature() (float64, error)
}

// Timing holds the settling holds. A completed dispense holds for
// Celebration + CompleteHold so the blink is not cut short.
type Timing struct {
	AbortHold    time.Duration
	CompleteHold time.Duration
	Celebration  time.Duration
}

// Celebration blink pattern.
const (
	CelebrationReps = 3
	CelebrationOn   = 200 * time.Millisecond
	CelebrationOff  = 200 * time.Millisecond
)

// DefaultTiming returns the kiosk's factory holds.
func DefaultTiming() Timing {
	return Timing{
		AbortHold:    3 * time.Second,
		CompleteHold: 2 * time.Second,
		Celebration:  CelebrationReps * (CelebrationOn + CelebrationOff),
	}
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	State     State
}
