package state

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event           string       `json:"event,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	Moisture        MoistureJSON `json:"moisture"`
	WaterLevel      string       `json:"water_level"`
	Threshold       int          `json:"threshold"`
	IntervalMinutes int          `json:"interval_minutes"`
	Pump            PumpJSON     `json:"pump"`
	Watering        string       `json:"watering"`
	Halted          bool         `json:"halted,omitempty"`
	Indicator       string       `json:"indicator"`
	WiFi            WiFiJSON     `json:"wifi"`
	MQTT            MQTTStatus   `json:"mqtt"`
	UptimeSeconds   int64        `json:"uptime_seconds"`
	StartTime       string       `json:"start_time"`
	Timestamp       string       `json:"timestamp"`
	Log             []LogJSON    `json:"log"`
	Config          ConfigJSON   `json:"config"`
}

// MoistureJSON reports the latest sensor reading.
type MoistureJSON struct {
	Raw       int    `json:"raw"`
	Percent   int    `json:"percent"`
	Valid     bool   `json:"valid"`
	ReadingAt string `json:"reading_at,omitempty"`
}

// PumpJSON reports the pump actuator.
type PumpJSON struct {
	On     bool   `json:"on"`
	Source string `json:"source,omitempty"`
}

// WiFiJSON reports the radio and provisioning state.
type WiFiJSON struct {
	Mode      string `json:"mode"`
	Provision string `json:"provision"`
	SSID      string `json:"ssid,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// LogJSON is one log entry.
type LogJSON struct {
	Time    string `json:"time"`
	Message string `json:"message"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	WateringMs  int64  `json:"watering_ms"`
	RefreshMs   int64  `json:"refresh_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	APSSID      string `json:"ap_ssid"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Moisture: MoistureJSON{
			Raw:     snap.MoistureRaw,
			Percent: snap.MoisturePercent(),
			Valid:   snap.HasReading,
		},
		WaterLevel:      string(snap.WaterLevel),
		Threshold:       snap.Threshold,
		IntervalMinutes: snap.IntervalMinutes,
		Pump:            PumpJSON{On: snap.PumpOn, Source: string(snap.PumpSource)},
		Watering:        string(snap.Watering),
		Halted:          snap.Halted,
		Indicator:       string(snap.Indicator),
		WiFi: WiFiJSON{
			Mode:      string(snap.WiFiMode),
			Provision: string(snap.Provision),
			IP:        snap.IP,
		},
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Log:           make([]LogJSON, 0, len(snap.Log)),
		Config: ConfigJSON{
			WateringMs:  snap.Config.WateringDuration.Milliseconds(),
			RefreshMs:   snap.Config.RefreshPeriod.Milliseconds(),
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			APSSID:      snap.Config.APSSID,
		},
	}
	if snap.HasReading {
		inner.Moisture.ReadingAt = snap.ReadingAt.UTC().Format(time.RFC3339)
	}
	// The password never leaves the process.
	if snap.Credentials != nil {
		inner.WiFi.SSID = snap.Credentials.SSID
	}
	for _, e := range snap.Log {
		inner.Log = append(inner.Log, LogJSON{
			Time:    e.Time.UTC().Format(time.RFC3339),
			Message: e.Message,
		})
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
