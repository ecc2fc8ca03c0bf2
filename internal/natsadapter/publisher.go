// Package natsadapter publishes notifications to NATS.
package natsadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/notify"
)

// SubjectPrefix is prepended to the event type to form the publish subject.
const SubjectPrefix = "geosentinel.notifications."

// StreamName is the JetStream stream created when persistence is enabled.
const StreamName = "GEOSENTINEL_NOTIFICATIONS"

// Subject returns the subject a notification is published on.
func Subject(n notify.Notification) string {
	return SubjectPrefix + string(n.EventType)
}

// Publisher implements notify.Notifier over a NATS connection.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext // nil for core NATS
}

// NewPublisher connects to NATS. When jetStream is true the notification
// stream is created or updated and messages are published through JetStream.
func NewPublisher(url string, jetStream bool) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("geosentinel"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	p := &Publisher{conn: conn}
	if !jetStream {
		return p, nil
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	cfg := &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(cfg); err != nil {
		// Stream may already exist.
		if _, err := js.UpdateStream(cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", StreamName, err)
		}
	}
	p.js = js
	return p, nil
}

// Notify publishes n on Subject(n).
func (p *Publisher) Notify(ctx context.Context, n notify.Notification) error {
	data, err := notify.FormatPayload(n)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	subject := Subject(n)
	if p.js != nil {
		if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (p *Publisher) IsConnected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
