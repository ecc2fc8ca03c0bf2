package mqtt

import (
	"context"
	"sync"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/notify"
)

// FakePublisher records published notifications and lifecycle events for
// test assertions. Safe for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	// Notifications contains every notification passed to Notify.
	Notifications []notify.Notification

	// Payloads contains the JSON notification payloads.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// NotifyError, if set, will be returned by Notify.
	NotifyError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Notify records the notification.
func (f *FakePublisher) Notify(_ context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NotifyError != nil {
		return f.NotifyError
	}
	payload, err := notify.FormatPayload(n)
	if err != nil {
		return err
	}
	f.Notifications = append(f.Notifications, n)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Sent returns copies of the recorded notifications and their payloads.
func (f *FakePublisher) Sent() ([]notify.Notification, [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Notification(nil), f.Notifications...), append([][]byte(nil), f.Payloads...)
}

// Events returns a copy of the recorded system events.
func (f *FakePublisher) Events() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.SystemEvents...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}
