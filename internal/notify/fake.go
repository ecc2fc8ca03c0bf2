package notify

import (
	"context"
	"sync"
)

// FakeNotifier records notifications for test assertions.
type FakeNotifier struct {
	mu sync.Mutex
	// Sent contains all notifications that were delivered.
	Sent []Notification
	// NotifyError, if set, will be returned by Notify.
	NotifyError error
}

// NewFakeNotifier creates a FakeNotifier for testing.
func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{}
}

// Notify records the notification.
func (f *FakeNotifier) Notify(_ context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NotifyError != nil {
		return f.NotifyError
	}
	f.Sent = append(f.Sent, n)
	return nil
}

// Notifications returns a copy of the recorded notifications.
func (f *FakeNotifier) Notifications() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, len(f.Sent))
	copy(out, f.Sent)
	return out
}

// Reset clears recorded notifications.
func (f *FakeNotifier) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = nil
	f.NotifyError = nil
}
