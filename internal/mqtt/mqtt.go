// Package mqtt publishes status changes and lifecycle events to a broker and
// receives remote control commands, with a fake for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/aquarium-controller/internal/status"
)

// TopicStatus carries every partial status update.
const TopicStatus = "aquarium/status"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "aquarium/system"

// TopicCommand matches the per-controller command topics.
const TopicCommand = "aquarium/+/set"

// CommandTopic returns the command topic of one controller.
func CommandTopic(controller string) string {
	return "aquarium/" + controller + "/set"
}

// ErrBadCommand is returned for command messages that cannot be parsed.
var ErrBadCommand = errors.New("mqtt: malformed command")

// Publisher publishes status and system events to MQTT.
type Publisher interface {
	// PublishStatus sends one partial status update. Failures are returned
	// but must not stop the caller.
	PublishStatus(u status.Update) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // STARTUP, SHUTDOWN, HEARTBEAT, RECONNECTED
	Reason     string // signal name, shutdown only
	RawPayload []byte // full status snapshot; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// StatusPayload is the message published on TopicStatus.
type StatusPayload struct {
	Update StatusPayloadInner `json:"update"`
}

// StatusPayloadInner contains one partial update.
type StatusPayloadInner struct {
	Timestamp string        `json:"timestamp"`
	Source    string        `json:"source"`
	Fields    status.Record `json:"fields"`
}

// FormatStatusPayload creates the JSON payload for a status update.
// Fields keep the order in which the controller reported them.
func FormatStatusPayload(u status.Update) ([]byte, error) {
	var rec status.Record
	rec.Merge(u.Fields)
	return json.Marshal(StatusPayload{Update: StatusPayloadInner{
		Timestamp: u.Time.UTC().Format(time.RFC3339),
		Source:    u.Source,
		Fields:    rec,
	}})
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
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{System: SystemPayloadInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	}})
}

// Command is a remote control request for one controller.
type Command struct {
	Controller string
	Action     string
}

// commandPayload is the optional JSON form {"action":"on"}.
type commandPayload struct {
	Action string `json:"action"`
}

// ParseCommand extracts a command from a message on a command topic. The
// payload is either a bare action ("auto") or {"action":"auto"}.
func ParseCommand(topic string, payload []byte) (Command, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "aquarium" || parts[2] != "set" || parts[1] == "" {
		return Command{}, fmt.Errorf("%w: topic %q", ErrBadCommand, topic)
	}

	body := strings.TrimSpace(string(payload))
	action := body
	if strings.HasPrefix(body, "{") {
		var p commandPayload
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrBadCommand, err)
		}
		action = p.Action
	}
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		return Command{}, fmt.Errorf("%w: empty action", ErrBadCommand)
	}
	return Command{Controller: parts[1], Action: action}, nil
}
