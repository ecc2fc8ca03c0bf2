// Package mqtt connects the daemon to an MQTT broker: it publishes
// notifications and lifecycle events, and can act as the signal source when
// the location subsystem bridges its callbacks onto the broker.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topic names.
const (
	TopicNotifications = "geosentinel/notifications"
	TopicSystem        = "geosentinel/system"
	TopicSignals       = "geosentinel/signals"
	TopicCommands      = "geosentinel/commands"
)

// SystemPublisher sends daemon lifecycle events to TopicSystem.
type SystemPublisher interface {
	PublishSystem(event SystemEvent) error
	Close() error
}

// ConnectionStatus is implemented by publishers that hold a broker connection.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is one daemon lifecycle transition.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // STARTUP, SHUTDOWN, HEARTBEAT or RECONNECTED
	Reason     string // signal name or MQTT_DISCONNECT; shutdown only
	RawPayload []byte // full status document, sent as-is when set
	Retained   bool
}

// SystemPayload is the minimal lifecycle document used by the last will and
// RECONNECTED, which have no status snapshot to attach.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner holds the lifecycle fields.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload encodes event. A RawPayload takes precedence.
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
