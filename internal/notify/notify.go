// Package notify delivers confirmed presence events to the user.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/logic"
)

// Notification is a user-facing message for one confirmed transition.
type Notification struct {
	Title      string
	Body       string
	GeofenceID string
	EventType  logic.EventType
	Timestamp  time.Time
}

// Notifier sends notifications. Delivery is fire-and-forget: callers log
// errors and never retry.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// FromEvent builds the notification text for a confirmed event.
func FromEvent(ev logic.Event) Notification {
	n := Notification{
		GeofenceID: ev.GeofenceID,
		EventType:  ev.Type,
		Timestamp:  ev.Timestamp,
	}
	switch ev.Type {
	case logic.EventEntry:
		n.Title = fmt.Sprintf("Arrived at %s", ev.GeofenceName)
		n.Body = fmt.Sprintf("You entered %s.", ev.GeofenceName)
	case logic.EventExit:
		n.Title = fmt.Sprintf("Left %s", ev.GeofenceName)
		n.Body = fmt.Sprintf("You left %s.", ev.GeofenceName)
	}
	return n
}

// Payload is the wire format used by the MQTT and NATS publishers.
type Payload struct {
	Notification PayloadInner `json:"notification"`
}

// PayloadInner contains the notification details.
type PayloadInner struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	GeofenceID string `json:"geofence_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// FormatPayload creates the JSON payload for a notification.
func FormatPayload(n Notification) ([]byte, error) {
	return json.Marshal(Payload{
		Notification: PayloadInner{
			Timestamp:  n.Timestamp.UTC().Format(time.RFC3339),
			Event:      string(n.EventType),
			GeofenceID: n.GeofenceID,
			Title:      n.Title,
			Body:       n.Body,
		},
	})
}

// LogNotifier writes notifications to the process log. Used when no broker is configured.
type LogNotifier struct{}

// Notify logs n.
func (LogNotifier) Notify(_ context.Context, n Notification) error {
	slog.Info("notify: notification", "title", n.Title, "body", n.Body, "geofence_id", n.GeofenceID, "event", n.EventType)
	return nil
}

// Multi fans a notification out to several notifiers. Every notifier is tried;
// the returned error joins all failures.
type Multi []Notifier

// Notify sends n to every notifier.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
