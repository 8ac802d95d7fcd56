package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	BootID        string       `json:"boot_id"`
	State         string       `json:"state"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Ledger        LedgerJSON   `json:"ledger"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// LedgerJSON is the JSON representation of the ledger summary.
type LedgerJSON struct {
	Status      string  `json:"status"`
	Sessions    int     `json:"sessions"`
	Completed   int     `json:"completed"`
	Aborted     int     `json:"aborted"`
	TotalLiters float64 `json:"total_liters"`
	TotalSpent  float64 `json:"total_spent"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs         int64       `json:"poll_ms"`
	HeartbeatMs    int64       `json:"heartbeat_ms"`
	Broker         string      `json:"broker"`
	TopicPrefix    string      `json:"topic_prefix"`
	HTTPAddr       string      `json:"http_addr"`
	SensorBackend  string      `json:"sensor_backend"`
	RecentSessions int         `json:"recent_sessions"`
	Pricing        PricingJSON `json:"pricing"`
}

// PricingJSON is the JSON representation of the active pricing policy.
type PricingJSON struct {
	FlowRate           float64 `json:"flow_rate"`
	PricePerLiter      float64 `json:"price_per_liter"`
	SurchargeRate      float64 `json:"surcharge_rate"`
	LightThreshold     int     `json:"light_threshold"`
	TempThreshold      float64 `json:"temp_threshold"`
	TempDerate         float64 `json:"temp_derate"`
	DefaultTemperature float64 `json:"default_temperature"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}
	p := snap.Config.Pricing

	return StatusInner{
		BootID:        snap.BootID,
		State:         state,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Ledger: LedgerJSON{
			Status:      snap.Ledger.Status,
			Sessions:    snap.Ledger.Sessions,
			Completed:   snap.Ledger.Completed,
			Aborted:     snap.Ledger.Aborted,
			TotalLiters: round2(snap.Ledger.TotalLiters),
			TotalSpent:  round2(snap.Ledger.TotalSpent),
		},
		Config: ConfigJSON{
			PollMs:         snap.Config.PollMs,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			Broker:         snap.Config.Broker,
			TopicPrefix:    snap.Config.TopicPrefix,
			HTTPAddr:       snap.Config.HTTPAddr,
			SensorBackend:  snap.Config.SensorBackend,
			RecentSessions: snap.Config.RecentSessions,
			Pricing: PricingJSON{
				FlowRate:           p.FlowRate,
				PricePerLiter:      p.PricePerLiter,
				SurchargeRate:      p.SurchargeRate,
				LightThreshold:     p.LightThreshold,
				TempThreshold:      p.TempThreshold,
				TempDerate:         p.TempDerate,
				DefaultTemperature: p.DefaultTemperature,
			},
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
