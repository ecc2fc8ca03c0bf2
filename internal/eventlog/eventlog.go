// Package eventlog keeps the most recent domain events (raw signals, debounce
// decisions, notifications, errors) in a fixed-capacity ring buffer.
package eventlog

import (
	"sync"
	"time"
)

// Kind classifies a log entry.
type Kind string

const (
	KindRawEnter          Kind = "rawEnter"
	KindRawExit           Kind = "rawExit"
	KindDwellWait         Kind = "dwellWait"
	KindExitDebounce      Kind = "exitDebounce"
	KindEntered           Kind = "entered"
	KindExited            Kind = "exited"
	KindDwellCancelled    Kind = "dwellCancelled"
	KindExitCancelled     Kind = "exitCancelled"
	KindStateRequest      Kind = "stateRequest"
	KindVisit             Kind = "visit"
	KindAuthChange        Kind = "authChange"
	KindError             Kind = "error"
	KindSystem            Kind = "system"
	KindNotification      Kind = "notification"
	KindAccuracyChange    Kind = "accuracyChange"
	KindSignificantChange Kind = "significantChange"
	KindRegionMonitoring  Kind = "regionMonitoring"
)

// DefaultCapacity is the number of entries kept before the oldest is dropped.
const DefaultCapacity = 500

// Entry is a single logged event.
type Entry struct {
	Time     time.Time `json:"time"`
	Kind     Kind      `json:"kind"`
	Geofence string    `json:"geofence,omitempty"`
	Details  string    `json:"details"`
}

// Log is a fixed-capacity ring buffer of entries. Safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	buf      []Entry
	capacity int
	head     int // next write position
	count    int
	now      func() time.Time
}

// New creates a Log holding at most capacity entries. now stamps new entries;
// nil means time.Now.
func New(capacity int, now func() time.Time) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Log{
		buf:      make([]Entry, capacity),
		capacity: capacity,
		now:      now,
	}
}

// Append records an entry, overwriting the oldest when full.
func (l *Log) Append(kind Kind, geofence, details string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.head] = Entry{
		Time:     l.now(),
		Kind:     kind,
		Geofence: geofence,
		Details:  details,
	}
	l.head = (l.head + 1) % l.capacity
	if l.count < l.capacity {
		l.count++
	}
}

// Entries returns a copy of the buffered entries, newest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, l.count)
	for i := 0; i < l.count; i++ {
		// head-1 is the newest
		idx := (l.head - 1 - i + l.capacity) % l.capacity
		out[i] = l.buf[idx]
	}
	return out
}

// Len returns the number of buffered entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Clear drops every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head = 0
	l.count = 0
	for i := range l.buf {
		l.buf[i] = Entry{}
	}
}
