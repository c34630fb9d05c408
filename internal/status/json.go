package status

import (
	"encoding/json"
	"time"
)

// StatusJSON wraps a Report under the "status" key, the shape served on
// /index.json and published with system events.
type StatusJSON struct {
	Status Report `json:"status"`
}

// Report is the serialised form of a Snapshot.
type Report struct {
	Event      string       `json:"event,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Version    string       `json:"version"`
	Hostname   string       `json:"hostname,omitempty"`
	Fields     Record       `json:"fields"`
	Uptime     int64        `json:"uptime_seconds"`
	Started    string       `json:"start_time"`
	Timestamp  string       `json:"timestamp"`
	LastUpdate string       `json:"last_update,omitempty"`
	MQTT       MQTTReport   `json:"mqtt"`
	Network    *NetworkInfo `json:"network,omitempty"`
	Daemon     DaemonReport `json:"config"`
}

// MQTTReport is the broker connection as seen at snapshot time.
type MQTTReport struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// DaemonReport echoes the settings that shape what observers receive.
type DaemonReport struct {
	HeartbeatMs int64  `json:"heartbeat_ms"`
	HTTPAddr    string `json:"http_addr"`
}

func rfc3339(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// NewReport converts snap for serialisation.
func NewReport(snap Snapshot) Report {
	r := Report{
		Version:   snap.Config.Version,
		Hostname:  snap.Config.Hostname,
		Fields:    snap.Fields,
		Uptime:    int64(snap.Uptime() / time.Second),
		Started:   rfc3339(snap.StartTime),
		Timestamp: rfc3339(snap.Now),
		MQTT:      MQTTReport{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Network:   snap.Network,
		Daemon:    DaemonReport{HeartbeatMs: snap.Config.HeartbeatMs, HTTPAddr: snap.Config.HTTPAddr},
	}
	if !snap.LastUpdate.IsZero() {
		r.LastUpdate = rfc3339(snap.LastUpdate)
	}
	return r
}

// FormatJSON returns the indented status served over HTTP.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: NewReport(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the status published with a system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	r := NewReport(snap)
	r.Event, r.Reason = event, reason
	data, _ := json.Marshal(StatusJSON{Status: r})
	return data
}
