package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/fuel-kiosk/internal/logic"
	"github.com/sweeney/fuel-kiosk/internal/pricing"
	"github.com/sweeney/fuel-kiosk/internal/telemetry"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{PollMs: 200, Broker: "tcp://localhost:1883", HTTPAddr: ":8080", RecentSessions: 5}
	tr := NewTracker("boot-1", start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.BootID != "boot-1" {
		t.Errorf("BootID: got %q, want boot-1", snap.BootID)
	}
	if snap.Config.PollMs != 200 {
		t.Errorf("Config.PollMs: got %d, want 200", snap.Config.PollMs)
	}
	if snap.Config.HTTPAddr != ":8080" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8080")
	}
	if snap.State != "" {
		t.Errorf("expected empty State initially, got %q", snap.State)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker("b", time.Now(), Config{})

	tr.Update(logic.StateActive, Ledger{Status: telemetry.StatusFueling, Sessions: 3, Aborted: 1, Completed: 2})

	snap := tr.Snapshot()
	if snap.State != logic.StateActive {
		t.Errorf("State: got %q, want ACTIVE", snap.State)
	}
	if snap.Ledger.Sessions != 3 {
		t.Errorf("Ledger.Sessions: got %d, want 3", snap.Ledger.Sessions)
	}
	if snap.Ledger.Status != telemetry.StatusFueling {
		t.Errorf("Ledger.Status: got %q", snap.Ledger.Status)
	}
}

func TestLedgerFrom(t *testing.T) {
	l := LedgerFrom(telemetry.Snapshot{
		Status:      telemetry.StatusComplete,
		TotalLiters: 1.5,
		TotalSpent:  2.775,
		Aborted:     1,
		Completed:   2,
		Count:       3,
	})
	if l.Sessions != 3 || l.Aborted != 1 || l.Completed != 2 {
		t.Errorf("unexpected counts: %+v", l)
	}
	if l.TotalLiters != 1.5 || l.TotalSpent != 2.775 {
		t.Errorf("unexpected totals: %+v", l)
	}
}

func TestSetPricing(t *testing.T) {
	tr := NewTracker("b", time.Now(), Config{Pricing: pricing.Default()})

	p := pricing.Default()
	p.PricePerLiter = 2.10
	tr.SetPricing(p)

	if got := tr.Snapshot().Config.Pricing.PricePerLiter; got != 2.10 {
		t.Errorf("PricePerLiter: got %v, want 2.10", got)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker("b", time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker("b", time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker("b", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker("b", time.Now(), Config{})
	tr.Update(logic.StateActive, Ledger{Sessions: 1})

	snap1 := tr.Snapshot()

	tr.Update(logic.StateSettling, Ledger{Sessions: 2})

	if snap1.State != logic.StateActive {
		t.Error("snapshot should be a copy; State was modified")
	}
	if snap1.Ledger.Sessions != 1 {
		t.Error("snapshot should be a copy; Ledger was modified")
	}
}

func testSnapshot() Snapshot {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Snapshot{
		BootID:        "0b6c8f1e",
		State:         logic.StateIdle,
		Ledger:        Ledger{Status: telemetry.StatusWaiting, Sessions: 4, Completed: 3, Aborted: 1, TotalLiters: 1.23456, TotalSpent: 2.28394},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config: Config{
			PollMs:         200,
			HeartbeatMs:    900000,
			Broker:         "tcp://localhost:1883",
			TopicPrefix:    "fuel/kiosk",
			HTTPAddr:       ":8080",
			SensorBackend:  "iio",
			RecentSessions: 5,
			Pricing:        pricing.Default(),
		},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(testSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.State != "IDLE" {
		t.Errorf("State: got %q, want IDLE", parsed.Status.State)
	}
	if parsed.Status.BootID != "0b6c8f1e" {
		t.Errorf("BootID: got %q", parsed.Status.BootID)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if parsed.Status.Ledger.Sessions != 4 {
		t.Errorf("Ledger.Sessions: got %d, want 4", parsed.Status.Ledger.Sessions)
	}
	if parsed.Status.Ledger.TotalLiters != 1.23 || parsed.Status.Ledger.TotalSpent != 2.28 {
		t.Errorf("ledger totals not rounded: %+v", parsed.Status.Ledger)
	}
	if parsed.Status.Config.Pricing.PricePerLiter != 1.85 {
		t.Errorf("Pricing.PricePerLiter: got %v, want 1.85", parsed.Status.Config.Pricing.PricePerLiter)
	}
	// Event and Reason should be omitted
	if parsed.Status.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("expected empty Reason for web format, got %q", parsed.Status.Reason)
	}
}

func TestFormatJSONUnknownState(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.State != "UNKNOWN" {
		t.Errorf("State: got %q, want UNKNOWN", parsed.Status.State)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.Ledger.Completed != 3 {
		t.Errorf("Ledger.Completed: got %d, want 3", parsed.Status.Ledger.Completed)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := testSnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "Forecourt"}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "Forecourt" {
		t.Errorf("Network.SSID: got %q, want Forecourt", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker("b", time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(logic.StateActive, Ledger{Sessions: i})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
			tr.SetPricing(pricing.Default())
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
