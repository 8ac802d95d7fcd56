// Package mqtt publishes sessions, status text and daemon lifecycle events,
// with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/sweeney/fuel-kiosk/internal/telemetry"
)

// DefaultTopicPrefix is the topic root when none is configured.
const DefaultTopicPrefix = "fuel/kiosk"

// Topics holds the full topic names under a prefix.
type Topics struct {
	Sessions string // one message per finished dispense
	Status   string // status text, retained
	System   string // STARTUP, HEARTBEAT, SHUTDOWN, RECONNECTED, LWT
}

// NewTopics derives the topic names from prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Sessions: prefix + "/sessions",
		Status:   prefix + "/status",
		System:   prefix + "/system",
	}
}

// Publisher publishes kiosk events to MQTT.
type Publisher interface {
	// PublishSession sends a finished dispense to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishSession(event SessionEvent) error

	// PublishStatus sends the current status text.
	PublishStatus(event StatusEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SessionEvent is a finished dispense tagged with the daemon's boot ID, so
// consumers can tell sequence numbers from different runs apart.
type SessionEvent struct {
	BootID  string
	Session telemetry.Session
}

// StatusEvent is a status text change.
type StatusEvent struct {
	Timestamp time.Time
	Text      string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SessionPayload represents the MQTT message payload for a session.
type SessionPayload struct {
	Session SessionPayloadInner `json:"session"`
}

// SessionPayloadInner contains the session details.
type SessionPayloadInner struct {
	BootID       string  `json:"boot_id"`
	Seq          int     `json:"seq"`
	Kind         string  `json:"kind"`
	Liters       float64 `json:"liters"`
	Price        float64 `json:"price"`
	Dark         bool    `json:"dark"`
	Aborted      bool    `json:"aborted"`
	DurationMs   int64   `json:"duration_ms"`
	Temperature  float64 `json:"temperature"`
	TempFallback bool    `json:"temp_fallback,omitempty"`
	Timestamp    string  `json:"timestamp"`
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// FormatSessionPayload creates the JSON payload for a session.
// Liters and price keep four decimals; the reporting interface rounds further.
func FormatSessionPayload(event SessionEvent) ([]byte, error) {
	s := event.Session
	payload := SessionPayload{
		Session: SessionPayloadInner{
			BootID:       event.BootID,
			Seq:          s.Seq,
			Kind:         s.Kind(),
			Liters:       round(s.Liters, 4),
			Price:        round(s.Price, 4),
			Dark:         s.Dark,
			Aborted:      s.Aborted,
			DurationMs:   s.Duration.Milliseconds(),
			Temperature:  s.Temperature,
			TempFallback: s.TempFallback,
			Timestamp:    s.EndedAt.UTC().Format(time.RFC3339),
		},
	}
	return json.Marshal(payload)
}

// StatusPayload represents the MQTT message payload for a status change.
type StatusPayload struct {
	Status StatusPayloadInner `json:"status"`
}

// StatusPayloadInner contains the status text.
type StatusPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// FormatStatusPayload creates the JSON payload for a status change.
func FormatStatusPayload(event StatusEvent) ([]byte, error) {
	return json.Marshal(StatusPayload{
		Status: StatusPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Text:      event.Text,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
