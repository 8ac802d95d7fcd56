// Package telemetry holds the kiosk's session ledger: the only state shared
// between the control loop (single writer) and the reporting interface
// (many readers).
//
// Every method takes the store's lock, so a reader never sees totals that do
// not match the history it is given.
package telemetry

import (
	"sync"
	"time"
)

// Status messages written by the fueling state machine.
const (
	StatusWaiting   = "⏳ Waiting for magnet..."
	StatusFueling   = "🧲 Magnet detected — Fueling in progress."
	StatusComplete  = "🎉 Fueling complete. Nice job!"
	StatusTiltAbort = "⚠️ TILT STOPPED — recorded partial fueling"
)

// DefaultRecent is the number of sessions included in a status snapshot
// when the caller does not ask for a specific window.
const DefaultRecent = 5

// Record is a finished dispense before it has been given a sequence number.
type Record struct {
	Liters       float64
	Price        float64
	Dark         bool
	Aborted      bool
	Duration     time.Duration
	Temperature  float64
	TempFallback bool
	EndedAt      time.Time
}

// Session is an appended, numbered Record. Sessions are never modified.
type Session struct {
	Seq int
	Record
}

// Kind returns "Tilt" for aborted sessions and "Normal" otherwise.
func (s Session) Kind() string {
	if s.Aborted {
		return "Tilt"
	}
	return "Normal"
}

// Snapshot is a point-in-time view of the ledger.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Status      string
	TotalLiters float64
	TotalSpent  float64
	Aborted     int
	Completed   int
	Count       int       // len(history) at the time of the snapshot
	Recent      []Session // last n sessions, oldest first
}

// AveragePrice returns the average price per liter across all sessions,
// or 0 if nothing has been dispensed.
func (s Snapshot) AveragePrice() float64 {
	if s.TotalLiters == 0 {
		return 0
	}
	return s.TotalSpent / s.TotalLiters
}

// Store is the ledger. The zero value is not usable; call NewStore.
type Store struct {
	mu          sync.RWMutex
	history     []Session
	totalLiters float64
	totalSpent  float64
	aborted     int
	completed   int
	status      string
	recent      int
	changed     chan struct{}
}

// NewStore creates an empty ledger. recent is the default snapshot window;
// values <= 0 fall back to DefaultRecent.
func NewStore(recent int) *Store {
	if recent <= 0 {
		recent = DefaultRecent
	}
	return &Store{
		status:  StatusWaiting,
		recent:  recent,
		changed: make(chan struct{}),
	}
}

// AppendSession numbers r, appends it and updates the totals in one step.
// It returns the stored Session.
func (s *Store) AppendSession(r Record) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.appendLocked(r)
	s.notifyLocked()
	return sess
}

// FinishSession is AppendSession and SetStatus under a single lock, so a
// reader never sees the new session next to the old status and Changed
// fires once.
func (s *Store) FinishSession(r Record, status string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.appendLocked(r)
	s.status = status
	s.notifyLocked()
	return sess
}

func (s *Store) appendLocked(r Record) Session {
	sess := Session{Seq: len(s.history) + 1, Record: r}
	s.history = append(s.history, sess)
	s.totalLiters += r.Liters
	s.totalSpent += r.Price
	if r.Aborted {
		s.aborted++
	} else {
		s.completed++
	}
	return sess
}

// SetStatus replaces the status text. Setting the same text again is a no-op.
func (s *Store) SetStatus(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == text {
		return
	}
	s.status = text
	s.notifyLocked()
}

// Status returns the current status text.
func (s *Store) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Snapshot returns the totals and the last n sessions. n <= 0 uses the
// store's default window.
func (s *Store) Snapshot(n int) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 {
		n = s.recent
	}
	start := len(s.history) - n
	if start < 0 {
		start = 0
	}

	recent := make([]Session, len(s.history)-start)
	copy(recent, s.history[start:])

	return Snapshot{
		Status:      s.status,
		TotalLiters: s.totalLiters,
		TotalSpent:  s.totalSpent,
		Aborted:     s.aborted,
		Completed:   s.completed,
		Count:       len(s.history),
		Recent:      recent,
	}
}

// FullHistory returns a copy of every session in completion order.
func (s *Store) FullHistory() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, len(s.history))
	copy(out, s.history)
	return out
}

// Changed returns a channel that is closed on the next mutation of the
// store. Callers re-arm by calling Changed again after it fires.
func (s *Store) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

func (s *Store) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
