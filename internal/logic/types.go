// Package logic contains the presence debounce state machine.
// This package has NO I/O: time is passed in as time.Time parameters and
// timers are armed through the Scheduler interface.
package logic

import (
	"time"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/eventlog"
)

// Direction selects one of the two timer slots of a geofence.
type Direction string

const (
	DirDwell Direction = "dwell" // entry confirmation
	DirExit  Direction = "exit"  // exit debounce
)

// TimerKey identifies a timer slot.
type TimerKey struct {
	GeofenceID string
	Dir        Direction
}

// Fire is delivered back to the engine when an armed timer's deadline passes.
// Seq identifies the arming; a Fire whose Seq no longer matches the slot is stale.
type Fire struct {
	Key TimerKey
	Seq uint64
}

// Timer is a cancellable one-shot deadline.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired or was stopped.
	Stop() bool
}

// Scheduler arms one-shot timers. When d elapses the implementation must
// deliver f to Engine.Fire on the same goroutine that handles raw signals.
type Scheduler interface {
	Schedule(d time.Duration, f Fire) Timer
}

// Sink receives domain log entries. *eventlog.Log satisfies it.
type Sink interface {
	Append(kind eventlog.Kind, geofence, details string)
}

// EventType is the direction of a confirmed transition.
type EventType string

const (
	EventEntry EventType = "entry"
	EventExit  EventType = "exit"
)

// Event is a confirmed presence transition.
type Event struct {
	Timestamp    time.Time
	Type         EventType
	GeofenceID   string
	GeofenceName string
	// Notify is true when the geofence wants a notification for this
	// direction and is not snoozed at confirmation time.
	Notify bool
}

// EventCounts tracks engine activity since startup.
type EventCounts struct {
	Entries        int
	Exits          int
	DwellCancelled int
	ExitCancelled  int
	SnoozedDrops   int
}
