// Package status provides a thread-safe status tracker for the fuel-kiosk daemon.
// It is read by the /health handler and by the MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/fuel-kiosk/internal/logic"
	"github.com/sweeney/fuel-kiosk/internal/pricing"
	"github.com/sweeney/fuel-kiosk/internal/telemetry"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs         int64
	HeartbeatMs    int64
	Broker         string
	TopicPrefix    string
	HTTPAddr       string
	SensorBackend  string
	RecentSessions int
	Pricing        pricing.Policy
}

// Ledger is the part of the session ledger reported alongside daemon state.
type Ledger struct {
	Status      string
	Sessions    int
	Completed   int
	Aborted     int
	TotalLiters float64
	TotalSpent  float64
}

// LedgerFrom summarizes a store snapshot.
func LedgerFrom(s telemetry.Snapshot) Ledger {
	return Ledger{
		Status:      s.Status,
		Sessions:    s.Count,
		Completed:   s.Completed,
		Aborted:     s.Aborted,
		TotalLiters: s.TotalLiters,
		TotalSpent:  s.TotalSpent,
	}
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	BootID        string
	State         logic.State
	Ledger        Ledger
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given boot ID, start time and config.
func NewTracker(bootID string, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the machine state and ledger summary.
// Called from runLoop on every tick.
func (t *Tracker) Update(state logic.State, ledger Ledger) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Ledger = ledger
	t.mu.Unlock()
}

// SetPricing records a reloaded pricing policy.
func (t *Tracker) SetPricing(p pricing.Policy) {
	t.mu.Lock()
	t.snap.Config.Pricing = p
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
