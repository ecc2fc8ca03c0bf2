package logic

import (
	"fmt"
	"time"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/eventlog"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
)

type armed struct {
	seq   uint64
	timer Timer
}

// Engine turns raw enter/exit signals into confirmed presence events.
// Not safe for concurrent use: raw signals, Fire and Determine must all be
// called from one goroutine.
type Engine struct {
	reg     *geofence.Registry
	sched   Scheduler
	log     Sink
	persist func()

	timers map[TimerKey]armed
	seq    uint64
	counts EventCounts
}

// NewEngine creates an engine operating on reg. persist is called after every
// state mutation; it may be nil.
func NewEngine(reg *geofence.Registry, sched Scheduler, log Sink, persist func()) *Engine {
	if persist == nil {
		persist = func() {}
	}
	return &Engine{
		reg:     reg,
		sched:   sched,
		log:     log,
		persist: persist,
		timers:  make(map[TimerKey]armed),
	}
}

// RawEnter handles a raw region-entered signal.
func (e *Engine) RawEnter(id string, now time.Time) {
	g, ok := e.reg.Get(id)
	if !ok {
		return
	}
	st := e.reg.Status(id)

	if geofence.IsSnoozing(*st, now) {
		e.counts.SnoozedDrops++
		e.log.Append(eventlog.KindRawEnter, g.Name, fmt.Sprintf("ignored raw enter: snoozed until %s", st.SnoozeUntil.UTC().Format(time.RFC3339)))
		return
	}
	e.log.Append(eventlog.KindRawEnter, g.Name, "raw enter signal")

	if e.cancel(TimerKey{id, DirExit}) {
		e.counts.ExitCancelled++
		e.log.Append(eventlog.KindExitCancelled, g.Name, "exit cancelled: re-entered before debounce elapsed")
	}
	st.PendingExitSince = nil

	dwell := e.reg.Settings().Dwell()
	t := now
	st.State = geofence.StatePendingEntry
	st.PendingEntrySince = &t
	e.arm(TimerKey{id, DirDwell}, dwell)
	e.log.Append(eventlog.KindDwellWait, g.Name, fmt.Sprintf("waiting %s to confirm entry", dwell))

	e.persist()
}

// RawExit handles a raw region-exited signal.
func (e *Engine) RawExit(id string, now time.Time) {
	g, ok := e.reg.Get(id)
	if !ok {
		return
	}
	st := e.reg.Status(id)

	if geofence.IsSnoozing(*st, now) {
		e.counts.SnoozedDrops++
		e.log.Append(eventlog.KindRawExit, g.Name, fmt.Sprintf("ignored raw exit: snoozed until %s", st.SnoozeUntil.UTC().Format(time.RFC3339)))
		return
	}
	e.log.Append(eventlog.KindRawExit, g.Name, "raw exit signal")

	if e.cancel(TimerKey{id, DirDwell}) {
		e.counts.DwellCancelled++
		e.log.Append(eventlog.KindDwellCancelled, g.Name, "dwell cancelled: left before dwell elapsed")
	}
	st.PendingEntrySince = nil

	debounce := e.reg.Settings().ExitDebounce()
	t := now
	st.State = geofence.StatePendingExit
	st.PendingExitSince = &t
	e.arm(TimerKey{id, DirExit}, debounce)
	e.log.Append(eventlog.KindExitDebounce, g.Name, fmt.Sprintf("waiting %s to confirm exit", debounce))

	e.persist()
}

// Fire handles an elapsed timer. It returns the confirmed event, or nil when
// the firing is stale or the geofence is no longer in the matching pending phase.
func (e *Engine) Fire(f Fire, now time.Time) *Event {
	a, ok := e.timers[f.Key]
	if !ok || a.seq != f.Seq {
		return nil
	}
	delete(e.timers, f.Key)

	id := f.Key.GeofenceID
	g, ok := e.reg.Get(id)
	if !ok {
		return nil
	}
	st := e.reg.Status(id)
	t := now

	var ev Event
	switch f.Key.Dir {
	case DirDwell:
		if st.State != geofence.StatePendingEntry {
			return nil
		}
		st.State = geofence.StateInside
		st.LastEntry = &t
		st.PendingEntrySince = nil
		ev = Event{Type: EventEntry, Notify: g.NotifyOnEntry}
		e.counts.Entries++
		e.log.Append(eventlog.KindEntered, g.Name, "entry confirmed")
	case DirExit:
		if st.State != geofence.StatePendingExit {
			return nil
		}
		st.State = geofence.StateOutside
		st.LastExit = &t
		st.PendingExitSince = nil
		ev = Event{Type: EventExit, Notify: g.NotifyOnExit}
		e.counts.Exits++
		e.log.Append(eventlog.KindExited, g.Name, "exit confirmed")
	default:
		return nil
	}

	// Snooze may have started after the raw signal; the timer still confirms
	// the state but the notification is suppressed.
	if ev.Notify && geofence.IsSnoozing(*st, now) {
		ev.Notify = false
	}
	ev.Timestamp = now
	ev.GeofenceID = id
	ev.GeofenceName = g.Name

	e.persist()
	return &ev
}

// Determine applies an explicit state-query result. It bypasses debouncing:
// no pending phase, no confirmed event. Armed timers are left running; they
// confirm nothing once the state no longer matches their pending phase.
func (e *Engine) Determine(id string, state geofence.State, now time.Time) {
	g, ok := e.reg.Get(id)
	if !ok {
		return
	}
	switch state {
	case geofence.StateInside, geofence.StateOutside, geofence.StateUnknown:
	default:
		return
	}
	st := e.reg.Status(id)
	st.State = state
	st.PendingEntrySince = nil
	st.PendingExitSince = nil
	e.log.Append(eventlog.KindStateRequest, g.Name, fmt.Sprintf("state determined: %s", state))
	e.persist()
}

// Snooze suppresses raw signals and notifications for the geofence for the
// given number of minutes. Armed timers are not cancelled. Returns false for
// unknown ids or non-positive durations.
func (e *Engine) Snooze(id string, minutes int, now time.Time) bool {
	g, ok := e.reg.Get(id)
	if !ok || minutes <= 0 {
		return false
	}
	st := e.reg.Status(id)
	until := now.Add(time.Duration(minutes) * time.Minute)
	st.SnoozeUntil = &until
	e.log.Append(eventlog.KindSystem, g.Name, fmt.Sprintf("snoozed for %d minutes", minutes))
	e.persist()
	return true
}

// Unsnooze clears a snooze. Returns false for unknown ids.
func (e *Engine) Unsnooze(id string) bool {
	g, ok := e.reg.Get(id)
	if !ok {
		return false
	}
	st := e.reg.Status(id)
	if st.SnoozeUntil == nil {
		return true
	}
	st.SnoozeUntil = nil
	e.log.Append(eventlog.KindSystem, g.Name, "snooze cleared")
	e.persist()
	return true
}

// Abandon returns a geofence that is pending with no timer armed for its
// phase to unknown, clearing the pending timestamps. Reports whether the
// state changed.
func (e *Engine) Abandon(id string) bool {
	g, ok := e.reg.Get(id)
	if !ok {
		return false
	}
	dwell, exit := e.Armed(id)
	st := e.reg.Status(id)
	switch {
	case st.State == geofence.StatePendingEntry && !dwell:
	case st.State == geofence.StatePendingExit && !exit:
	default:
		return false
	}
	prev := st.State
	st.State = geofence.StateUnknown
	st.PendingEntrySince = nil
	st.PendingExitSince = nil
	e.log.Append(eventlog.KindStateRequest, g.Name, fmt.Sprintf("%s abandoned: not monitored, state unknown", prev))
	e.persist()
	return true
}

// Forget cancels both timers of a geofence. Used when it is deleted.
func (e *Engine) Forget(id string) {
	e.cancel(TimerKey{id, DirDwell})
	e.cancel(TimerKey{id, DirExit})
}

// CancelAll cancels every armed timer.
func (e *Engine) CancelAll() {
	for key, a := range e.timers {
		a.timer.Stop()
		delete(e.timers, key)
	}
}

// Armed reports which timers are armed for a geofence.
func (e *Engine) Armed(id string) (dwell, exit bool) {
	_, dwell = e.timers[TimerKey{id, DirDwell}]
	_, exit = e.timers[TimerKey{id, DirExit}]
	return dwell, exit
}

// ArmedCount returns the number of armed timers across all geofences.
func (e *Engine) ArmedCount() int {
	return len(e.timers)
}

// Counts returns a copy of the activity counters.
func (e *Engine) Counts() EventCounts {
	return e.counts
}

// arm cancels any timer in the slot and arms a new one.
func (e *Engine) arm(key TimerKey, d time.Duration) {
	e.cancel(key)
	e.seq++
	f := Fire{Key: key, Seq: e.seq}
	e.timers[key] = armed{seq: f.Seq, timer: e.sched.Schedule(d, f)}
}

// cancel stops and removes the timer in the slot. Returns true if one was armed.
func (e *Engine) cancel(key TimerKey) bool {
	a, ok := e.timers[key]
	if !ok {
		return false
	}
	a.timer.Stop()
	delete(e.timers, key)
	return true
}
