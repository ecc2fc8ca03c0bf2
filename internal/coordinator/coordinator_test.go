package coordinator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/eventlog"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/logic"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/metrics"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/notify"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/signal"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/status"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/store"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type harness struct {
	t        *testing.T
	c        *Coordinator
	reg      *geofence.Registry
	src      *signal.FakeSource
	notifier *notify.FakeNotifier
	store    *store.MemoryStore
	log      *eventlog.Log
	sched    *logic.FakeScheduler
	tracker  *status.Tracker
	metrics  *metrics.Metrics
	clock    time.Time
}

func fence(id string, priority int, lat, lon float64) geofence.Geofence {
	return geofence.Geofence{
		ID:            id,
		Name:          strings.ToUpper(id),
		Center:        geofence.Coordinate{Lat: lat, Lon: lon},
		Radius:        100,
		Priority:      priority,
		Enabled:       true,
		NotifyOnEntry: true,
		NotifyOnExit:  true,
	}
}

func newHarness(t *testing.T, settings geofence.Settings, fences ...geofence.Geofence) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		reg:      geofence.NewRegistry(settings),
		src:      signal.NewFakeSource(),
		notifier: notify.NewFakeNotifier(),
		store:    store.NewMemoryStore(),
		sched:    logic.NewFakeScheduler(),
		tracker:  status.NewTracker(t0, status.Config{}),
		metrics:  metrics.New(prometheus.NewRegistry()),
		clock:    t0,
	}
	for _, g := range fences {
		h.reg.Put(g)
	}
	h.log = eventlog.New(eventlog.DefaultCapacity, h.now)
	h.c = New(Options{
		Registry:  h.reg,
		Source:    h.src,
		Notifier:  h.notifier,
		Store:     h.store,
		Log:       h.log,
		Tracker:   h.tracker,
		Metrics:   h.metrics,
		Now:       h.now,
		Scheduler: h.sched,
	})
	return h
}

func (h *harness) now() time.Time { return h.clock }

// emit delivers ev as the loop would.
func (h *harness) emit(ev signal.Event) {
	h.c.handleSignal(ev)
	h.c.publish()
}

// advance moves the clock and delivers due timer firings.
func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
	for _, f := range h.sched.Advance(d) {
		h.c.fire(context.Background(), f)
	}
	h.c.publish()
}

func (h *harness) hasLog(kind eventlog.Kind, substr string) bool {
	for _, e := range h.log.Entries() {
		if e.Kind == kind && strings.Contains(e.Details, substr) {
			return true
		}
	}
	return false
}

func regionIDs(cmds []signal.Command) []string {
	var ids []string
	for _, c := range cmds {
		ids = append(ids, c.RegionID)
	}
	return ids
}

func sameIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestStartMonitorsEnabledGeofences(t *testing.T) {
	disabled := fence("c", 0, 0, 0)
	disabled.Enabled = false
	h := newHarness(t, geofence.DefaultSettings(), fence("a", 1, 0, 0), fence("b", 2, 0, 0), disabled)

	h.c.start()

	if got := regionIDs(h.src.CommandsNamed(signal.CmdStartMonitoring)); !sameIDs(got, "b", "a") {
		t.Errorf("start_monitoring: got %v, want [b a]", got)
	}
	if got := regionIDs(h.src.CommandsNamed(signal.CmdRequestState)); !sameIDs(got, "b", "a") {
		t.Errorf("request_state: got %v, want [b a]", got)
	}
	if len(h.src.CommandsNamed(signal.CmdStartContinuous)) != 1 {
		t.Error("expected continuous updates in balanced mode")
	}
	if len(h.src.CommandsNamed(signal.CmdStartSignificantChange)) != 0 {
		t.Error("significant change not requested")
	}
	if !h.c.running {
		t.Error("expected running after start")
	}
}

func TestStartLowBatteryAcquisition(t *testing.T) {
	s := geofence.DefaultSettings()
	s.BatteryMode = geofence.BatteryLow
	s.VisitMonitoring = true
	h := newHarness(t, s, fence("a", 0, 0, 0))

	h.c.start()

	if len(h.src.CommandsNamed(signal.CmdStartContinuous)) != 0 {
		t.Error("low battery must not start continuous updates")
	}
	if len(h.src.CommandsNamed(signal.CmdStartSignificantChange)) != 1 {
		t.Error("expected significant-change updates in low battery mode")
	}
	if len(h.src.CommandsNamed(signal.CmdStartVisitMonitoring)) != 1 {
		t.Error("expected visit monitoring when toggled")
	}
}

func TestRestartReconcilesPreviouslyMonitored(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("a", 0, 0, 0))
	h.c.start()
	h.emit(signal.Event{Kind: signal.KindRegionEntered, RegionID: "a"})
	h.src.Reset()

	h.c.start()

	if dwell, _ := h.c.engine.Armed("a"); dwell {
		t.Error("restart must cancel armed timers")
	}
	if got := regionIDs(h.src.CommandsNamed(signal.CmdRequestState)); !sameIDs(got, "a") {
		t.Errorf("request_state: got %v, want [a]", got)
	}
	if len(h.src.CommandsNamed(signal.CmdStartMonitoring)) != 0 {
		t.Error("unchanged region must not be re-monitored")
	}
}

func commandNames(cmds []signal.Command) []string {
	var names []string
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	return names
}

func TestRestartStopsPreviousAcquisition(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("a", 0, 0, 0))
	h.c.start()
	h.src.Reset()

	s := h.reg.Settings()
	s.BatteryMode = geofence.BatteryLow
	h.reg.SetSettings(s)
	h.c.start()

	got := commandNames(h.src.Commands())
	if !sameIDs(got, signal.CmdStopAll, signal.CmdRequestState, signal.CmdStartSignificantChange) {
		t.Errorf("commands: got %v, want [stop_all request_state start_significant_change]", got)
	}
}

func TestFirstStartSkipsStopAll(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("a", 0, 0, 0))
	h.c.start()

	if len(h.src.CommandsNamed(signal.CmdStopAll)) != 0 {
		t.Error("nothing to stop before the first start")
	}
}

func TestRestartMidDwell(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("home", 0, 0, 0))
	h.c.start()
	h.emit(signal.Event{Kind: signal.KindRegionEntered, RegionID: "home"})
	if dwell, _ := h.c.engine.Armed("home"); !dwell {
		t.Fatal("expected dwell armed after raw enter")
	}
	h.src.Reset()

	s := h.reg.Settings()
	s.VisitMonitoring = true
	h.reg.SetSettings(s)
	h.c.start()

	if dwell, _ := h.c.engine.Armed("home"); dwell || h.sched.Live() != 0 {
		t.Error("restart must cancel the armed dwell")
	}
	got := commandNames(h.src.Commands())
	want := []string{signal.CmdStopAll, signal.CmdRequestState, signal.CmdStartContinuous, signal.CmdStartVisitMonitoring}
	if !sameIDs(got, want...) {
		t.Errorf("commands: got %v, want %v", got, want)
	}
	if got := regionIDs(h.src.CommandsNamed(signal.CmdRequestState)); !sameIDs(got, "home") {
		t.Errorf("request_state: got %v, want [home]", got)
	}

	h.advance(time.Hour)
	if n := len(h.notifier.Notifications()); n != 0 {
		t.Errorf("cancelled dwell must not notify, got %d notifications", n)
	}

	h.emit(signal.Event{Kind: signal.KindRegionState, RegionID: "home", State: geofence.StateInside})
	if st := h.reg.StatusOf("home"); st.State != geofence.StateInside || st.PendingEntrySince != nil {
		t.Errorf("expected inside after state query, got %+v", st)
	}
	if n := len(h.notifier.Notifications()); n != 0 {
		t.Errorf("state query must not notify, got %d notifications", n)
	}
}

func TestStartAbandonsUnmonitoredPending(t *testing.T) {
	s := geofence.DefaultSettings()
	s.MaxMonitoredRegions = 1
	off := fence("off", 9, 0, 0)
	off.Enabled = false
	h := newHarness(t, s, fence("hi", 5, 0, 0), fence("lo", 1, 0, 0), off)

	since := t0.Add(-time.Minute)
	lo := h.reg.Status("lo")
	lo.State = geofence.StatePendingEntry
	lo.PendingEntrySince = &since
	st := h.reg.Status("off")
	st.State = geofence.StatePendingExit
	st.PendingExitSince = &since

	h.c.start()

	if got := regionIDs(h.src.CommandsNamed(signal.CmdRequestState)); !sameIDs(got, "hi") {
		t.Errorf("request_state: got %v, want [hi]", got)
	}
	for _, id := range []string{"lo", "off"} {
		st := h.reg.StatusOf(id)
		if st.State != geofence.StateUnknown || st.PendingEntrySince != nil || st.PendingExitSince != nil {
			t.Errorf("%s: expected unknown with no pending timestamps, got %+v", id, st)
		}
	}
	if !h.hasLog(eventlog.KindStateRequest, "pendingEntry abandoned") {
		t.Error("expected abandoned log entry")
	}

	snap, err := store.Decode(h.store.Raw())
	if err != nil {
		t.Fatalf("decode stored registry: %v", err)
	}
	if snap.States["lo"].State != geofence.StateUnknown {
		t.Errorf("stored state: got %s", snap.States["lo"].State)
	}

	h.advance(time.Hour)
	if n := len(h.notifier.Notifications()); n != 0 {
		t.Errorf("expected no notifications, got %d", n)
	}
}

func TestStartKeepsMonitoredPendingForQuery(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("home", 0, 0, 0))
	since := t0.Add(-time.Minute)
	st := h.reg.Status("home")
	st.State = geofence.StatePendingEntry
	st.PendingEntrySince = &since

	h.c.start()

	if got := h.reg.StatusOf("home").State; got != geofence.StatePendingEntry {
		t.Errorf("monitored region awaits its state query, got %s", got)
	}
	if got := regionIDs(h.src.CommandsNamed(signal.CmdRequestState)); !sameIDs(got, "home") {
		t.Errorf("request_state: got %v, want [home]", got)
	}
}

func TestDwellConfirmationNotifiesOnce(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("home", 0, 0, 0))
	h.c.start()

	h.emit(signal.Event{Kind: signal.KindRegionEntered, RegionID: "home"})
	if st := h.reg.StatusOf("home"); st.State != geofence.StatePendingEntry {
		t.Fatalf("expected pendingEntry, got %s", st.State)
	}

	h.advance(30 * time.Second)

	st := h.reg.StatusOf("home")
	if st.State != geofence.StateInside {
		t.Fatalf("expected inside, got %s", st.State)
	}
	if st.LastEntry == nil || !st.LastEntry.Equal(t0.Add(30*time.Second)) {
		t.Errorf("LastEntry: got %v", st.LastEntry)
	}
	sent := h.notifier.Notifications()
	if len(sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sent))
	}
	if sent[0].EventType != logic.EventEntry || sent[0].Title != "Arrived at HOME" {
		t.Errorf("unexpected notification: %+v", sent[0])
	}
	if !h.hasLog(eventlog.KindNotification, "Arrived at HOME") {
		t.Error("expected notification log entry")
	}

	// Written through to the store.
	snap, err := store.Decode(h.store.Raw())
	if err != nil {
		t.Fatalf("decode stored registry: %v", err)
	}
	if snap.States["home"].State != geofence.StateInside {
		t.Errorf("stored state: got %s", snap.States["home"].State)
	}

	if got := testutil.ToFloat64(h.metrics.Transitions.WithLabelValues("entry")); got != 1 {
		t.Errorf("transitions metric: got %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.Notifications.WithLabelValues("sent")); got != 1 {
		t.Errorf("notifications metric: got %v", got)
	}

	// Nothing else is pending.
	h.advance(time.Hour)
	if len(h.notifier.Notifications()) != 1 {
		t.Error("expected no further notifications")
	}
}

func TestReversalCancelsWithoutEvent(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("home", 0, 0, 0))
	h.c.start()

	h.emit(signal.Event{Kind: signal.KindRegionEntered, RegionID: "home"})
	h.advance(10 * time.Second)
	h.emit(signal.Event{Kind: signal.KindRegionExited, RegionID: "home"})
	h.advance(20 * time.Second)

	st := h.reg.StatusOf("home")
	if st.State != geofence.StatePendingExit {
		t.Errorf("expected pendingExit at t=30, got %s", st.State)
	}
	if st.PendingEntrySince != nil || st.PendingExitSince == nil {
		t.Errorf("pending timestamps inconsistent: %+v", st)
	}
	if len(h.notifier.Notifications()) != 0 {
		t.Error("no confirmed event expected")
	}
	if dwell, exit := h.c.engine.Armed("home"); dwell || !exit {
		t.Errorf("armed: dwell=%v exit=%v, want only exit", dwell, exit)
	}
	if got := testutil.ToFloat64(h.metrics.Cancellations.WithLabelValues("dwell")); got != 1 {
		t.Errorf("dwell cancellations metric: got %v", got)
	}

	// Exit debounce runs 60s from the raw exit at t=10.
	h.advance(40 * time.Second)
	sent := h.notifier.Notifications()
	if len(sent) != 1 || sent[0].EventType != logic.EventExit {
		t.Errorf("expected one exit notification, got %+v", sent)
	}
}

func TestSnoozedTimerConfirmsSilently(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("home", 0, 0, 0))
	h.c.start()

	h.emit(signal.Event{Kind: signal.KindRegionEntered, RegionID: "home"})
	h.c.engine.Snooze("home", 10, h.now())
	h.emit(signal.Event{Kind: signal.KindRegionExited, RegionID: "home"})

	if st := h.reg.StatusOf("home"); st.State != geofence.StatePendingEntry {
		t.Errorf("raw exit while snoozed must be dropped, state %s", st.State)
	}

	h.advance(30 * time.Second)
	if st := h.reg.StatusOf("home"); st.State != geofence.StateInside {
		t.Errorf("armed timer must still confirm, state %s", st.State)
	}
	if len(h.notifier.Notifications()) != 0 {
		t.Error("snoozed confirmation must not notify")
	}
	if got := testutil.ToFloat64(h.metrics.SnoozedDrops); got != 1 {
		t.Errorf("snoozed drops metric: got %v", got)
	}
}

func TestNotifyFlagsRespected(t *testing.T) {
	g := fence("home", 0, 0, 0)
	g.NotifyOnEntry = false
	h := newHarness(t, geofence.DefaultSettings(), g)
	h.c.start()

	h.emit(signal.Event{Kind: signal.KindRegionEntered, RegionID: "home"})
	h.advance(30 * time.Second)

	if len(h.notifier.Notifications()) != 0 {
		t.Error("notify_on_entry=false must not notify")
	}
	if !h.hasLog(eventlog.KindEntered, "") {
		t.Error("entry must still be logged")
	}
}

func TestNotifierErrorIsLogged(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("home", 0, 0, 0))
	h.notifier.NotifyError = errors.New("broker down")
	h.c.start()

	h.emit(signal.Event{Kind: signal.KindRegionEntered, RegionID: "home"})
	h.advance(30 * time.Second)

	if h.reg.StatusOf("home").State != geofence.StateInside {
		t.Error("notifier failure must not affect state")
	}
	if !h.hasLog(eventlog.KindError, "broker down") {
		t.Error("expected error log entry")
	}
	if got := testutil.ToFloat64(h.metrics.Notifications.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed notifications metric: got %v", got)
	}
}

func TestRegionStateDetermined(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("home", 0, 0, 0))
	h.c.start()

	h.emit(signal.Event{Kind: signal.KindRegionEntered, RegionID: "home"})
	h.emit(signal.Event{Kind: signal.KindRegionState, RegionID: "home", State: geofence.StateOutside})
	if st := h.reg.StatusOf("home"); st.State != geofence.StateOutside || st.PendingEntrySince != nil {
		t.Errorf("unexpected state after determination: %+v", st)
	}

	// The still-armed dwell timer confirms nothing.
	h.advance(30 * time.Second)
	if h.reg.StatusOf("home").State != geofence.StateOutside {
		t.Error("stale dwell timer must not confirm")
	}
	if len(h.notifier.Notifications()) != 0 {
		t.Error("no notification expected")
	}
}

func TestVisitRequestsStateForMonitored(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("a", 0, 0, 0), fence("b", 0, 0, 0))
	h.c.start()
	h.src.Reset()

	h.emit(signal.Event{Kind: signal.KindVisit, Location: geofence.Coordinate{Lat: 1, Lon: 2}})

	if got := regionIDs(h.src.CommandsNamed(signal.CmdRequestState)); !sameIDs(got, "a", "b") {
		t.Errorf("request_state: got %v, want [a b]", got)
	}
	if !h.hasLog(eventlog.KindVisit, "") {
		t.Error("expected visit log entry")
	}
	if h.reg.StatusOf("a").State != geofence.StateUnknown {
		t.Error("visit must not change state")
	}
}

func TestSourceErrorsAreLogged(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("a", 0, 0, 0))
	h.c.start()

	h.emit(signal.Event{Kind: signal.KindMonitoringFailed, RegionID: "a", Err: "region limit"})
	h.emit(signal.Event{Kind: signal.KindError, Err: "location unknown"})

	if !h.hasLog(eventlog.KindError, "monitoring failed: region limit") {
		t.Error("expected monitoring failure log entry")
	}
	if !h.hasLog(eventlog.KindError, "location error: location unknown") {
		t.Error("expected location error log entry")
	}
}

func TestCommandErrorsAreLogged(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("a", 0, 0, 0))
	h.src.CommandError = errors.New("not permitted")

	h.c.start()

	if !h.hasLog(eventlog.KindError, "start monitoring: not permitted") {
		t.Error("expected command failure log entry")
	}
	if len(h.c.monitored) != 0 {
		t.Error("failed region must not be marked monitored")
	}
}

func TestUnknownRegionDropped(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("a", 0, 0, 0))
	h.c.start()
	saves := h.store.Saves()

	h.emit(signal.Event{Kind: signal.KindRegionEntered, RegionID: "ghost"})
	h.emit(signal.Event{Kind: signal.KindRegionState, RegionID: "ghost", State: geofence.StateInside})

	if h.store.Saves() != saves {
		t.Error("unknown region must not persist anything")
	}
	if h.sched.Live() != 0 {
		t.Error("unknown region must not arm timers")
	}
}

func TestCapacityExclusionLogged(t *testing.T) {
	s := geofence.DefaultSettings()
	s.MaxMonitoredRegions = 3
	h := newHarness(t, s,
		fence("p1a", 1, 0, 0),
		fence("p1b", 1, 0, 0),
		fence("p2", 2, 0, 0),
		fence("p3", 3, 0, 0),
		fence("p1c", 1, 0, 0),
	)

	h.c.start()
	h.c.publish()

	if got := regionIDs(h.src.CommandsNamed(signal.CmdStartMonitoring)); !sameIDs(got, "p3", "p2", "p1a") {
		t.Errorf("start_monitoring: got %v", got)
	}
	if !h.hasLog(eventlog.KindRegionMonitoring, "2 excluded") {
		t.Error("expected excluded count in log")
	}
	if snap := h.tracker.Snapshot(); snap.Excluded != 2 || snap.Monitored != 3 {
		t.Errorf("status: monitored %d excluded %d", snap.Monitored, snap.Excluded)
	}
}

func TestRecenterInLowBattery(t *testing.T) {
	s := geofence.DefaultSettings()
	s.MaxMonitoredRegions = 1
	s.BatteryMode = geofence.BatteryLow
	h := newHarness(t, s, fence("far", 0, 1, 1), fence("near", 0, 0, 0))
	h.c.start()

	if got := regionIDs(h.src.CommandsNamed(signal.CmdStartMonitoring)); !sameIDs(got, "far") {
		t.Fatalf("initial selection: got %v, want [far]", got)
	}
	h.src.Reset()

	h.emit(signal.Event{Kind: signal.KindLocationUpdated, Location: geofence.Coordinate{Lat: 0.001, Lon: 0.001}})
	if !h.hasLog(eventlog.KindSignificantChange, "") {
		t.Error("expected significant change log in low battery mode")
	}
	h.c.recenterTick()

	if got := regionIDs(h.src.CommandsNamed(signal.CmdStopMonitoring)); !sameIDs(got, "far") {
		t.Errorf("stop_monitoring: got %v, want [far]", got)
	}
	if got := regionIDs(h.src.CommandsNamed(signal.CmdStartMonitoring)); !sameIDs(got, "near") {
		t.Errorf("start_monitoring: got %v, want [near]", got)
	}
}

func TestRecenterSkippedOutsideLowBattery(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("a", 0, 0, 0))
	h.c.start()
	h.emit(signal.Event{Kind: signal.KindLocationUpdated, Location: geofence.Coordinate{Lat: 1, Lon: 1}})
	h.src.Reset()

	h.c.recenterTick()

	if len(h.src.Commands()) != 0 {
		t.Errorf("expected no commands, got %+v", h.src.Commands())
	}
}

func TestAccuracyChangeLogged(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings())
	h.c.start()

	h.emit(signal.Event{Kind: signal.KindLocationUpdated, Accuracy: 10})
	h.emit(signal.Event{Kind: signal.KindLocationUpdated, Accuracy: 20})
	h.emit(signal.Event{Kind: signal.KindLocationUpdated, Accuracy: 500})

	n := 0
	for _, e := range h.log.Entries() {
		if e.Kind == eventlog.KindAccuracyChange {
			n++
		}
	}
	if n != 1 {
		t.Errorf("expected 1 accuracy change entry, got %d", n)
	}
}

func TestAuthorizationChanges(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("a", 0, 0, 0))
	h.c.start()
	h.src.Reset()

	h.emit(signal.Event{Kind: signal.KindAuthorizationChanged, Authorization: signal.AuthDenied})
	if h.c.running {
		t.Error("denied authorization must stop monitoring")
	}
	if len(h.src.CommandsNamed(signal.CmdStopAll)) != 1 {
		t.Error("expected stop_all")
	}
	if !h.hasLog(eventlog.KindAuthChange, "denied") {
		t.Error("expected auth change log entry")
	}

	h.src.Reset()
	h.emit(signal.Event{Kind: signal.KindAuthorizationChanged, Authorization: signal.AuthAlways})
	if !h.c.running {
		t.Error("authorization must restart monitoring")
	}
	if got := regionIDs(h.src.CommandsNamed(signal.CmdStartMonitoring)); !sameIDs(got, "a") {
		t.Errorf("start_monitoring: got %v", got)
	}
	if h.tracker.Snapshot().Authorization != "always" {
		t.Errorf("status authorization: got %q", h.tracker.Snapshot().Authorization)
	}
}

func TestAuthorizationReassertKeepsTimers(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("home", 0, 0, 0))
	h.c.start()
	h.emit(signal.Event{Kind: signal.KindAuthorizationChanged, Authorization: signal.AuthAlways})
	h.emit(signal.Event{Kind: signal.KindRegionEntered, RegionID: "home"})
	h.src.Reset()

	h.emit(signal.Event{Kind: signal.KindAuthorizationChanged, Authorization: signal.AuthAlways})

	if dwell, _ := h.c.engine.Armed("home"); !dwell {
		t.Error("unchanged authorization must keep the dwell armed")
	}
	if cmds := h.src.Commands(); len(cmds) != 0 {
		t.Errorf("unchanged authorization must not command the source, got %v", commandNames(cmds))
	}
	if !h.hasLog(eventlog.KindAuthChange, "always -> always") {
		t.Error("expected auth change log entry")
	}

	h.advance(30 * time.Second)
	if n := len(h.notifier.Notifications()); n != 1 {
		t.Errorf("expected entry notification, got %d", n)
	}
}

func TestStopCancelsAndUnmonitors(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("a", 0, 0, 0), fence("b", 0, 0, 0))
	h.c.start()
	h.emit(signal.Event{Kind: signal.KindRegionEntered, RegionID: "a"})
	h.src.Reset()

	h.c.stop()

	if h.sched.Live() != 0 || h.c.engine.ArmedCount() != 0 {
		t.Error("stop must cancel every timer")
	}
	if got := regionIDs(h.src.CommandsNamed(signal.CmdStopMonitoring)); !sameIDs(got, "a", "b") {
		t.Errorf("stop_monitoring: got %v", got)
	}
	if len(h.src.CommandsNamed(signal.CmdStopAll)) != 1 {
		t.Error("expected stop_all")
	}
}

func TestViewReportsArmedAndSnooze(t *testing.T) {
	h := newHarness(t, geofence.DefaultSettings(), fence("a", 0, 0, 0))
	h.c.start()
	h.emit(signal.Event{Kind: signal.KindRegionExited, RegionID: "a"})
	h.c.engine.Snooze("a", 5, h.now())
	h.c.publish()

	snap := h.tracker.Snapshot()
	if len(snap.Geofences) != 1 {
		t.Fatalf("expected 1 geofence view, got %d", len(snap.Geofences))
	}
	v := snap.Geofences[0]
	if !v.Monitored || !v.ExitArmed || v.DwellArmed || !v.Snoozing || v.SnoozeUntil == nil {
		t.Errorf("unexpected view: %+v", v)
	}
	if snap.ArmedTimers != 1 || !snap.Running {
		t.Errorf("unexpected monitor status: %+v", snap.Monitor)
	}
}

// runHarness starts Run with real timers.
func runHarness(t *testing.T, settings geofence.Settings, fences ...geofence.Geofence) (*harness, context.CancelFunc, <-chan error) {
	t.Helper()
	h := newHarness(t, settings, fences...)
	h.c = New(Options{
		Registry: h.reg,
		Source:   h.src,
		Notifier: h.notifier,
		Store:    h.store,
		Log:      h.log,
		Tracker:  h.tracker,
	})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.c.Run(ctx) }()
	t.Cleanup(cancel)
	return h, cancel, errCh
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunControls(t *testing.T) {
	h, cancel, errCh := runHarness(t, geofence.DefaultSettings())
	ctx := context.Background()

	g, err := h.c.AddGeofence(ctx, geofence.Geofence{Name: "Office", Center: geofence.Coordinate{Lat: 1, Lon: 1}, Radius: 50, Enabled: true})
	if err != nil {
		t.Fatalf("AddGeofence: %v", err)
	}
	if _, err := uuid.Parse(g.ID); err != nil {
		t.Errorf("expected generated uuid, got %q", g.ID)
	}
	if got := regionIDs(h.src.CommandsNamed(signal.CmdStartMonitoring)); !sameIDs(got, g.ID) {
		t.Errorf("start_monitoring: got %v", got)
	}
	if _, err := h.c.AddGeofence(ctx, g); !errors.Is(err, ErrInvalid) {
		t.Errorf("duplicate add: got %v, want ErrInvalid", err)
	}
	if _, err := h.c.AddGeofence(ctx, geofence.Geofence{Name: "x"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("zero radius: got %v, want ErrInvalid", err)
	}

	g.Radius = 75
	if err := h.c.UpdateGeofence(ctx, g); err != nil {
		t.Fatalf("UpdateGeofence: %v", err)
	}
	if n := len(h.src.CommandsNamed(signal.CmdStartMonitoring)); n != 2 {
		t.Errorf("changed region must be re-monitored, got %d start commands", n)
	}
	if err := h.c.UpdateGeofence(ctx, fence("ghost", 0, 0, 0)); !errors.Is(err, ErrNotFound) {
		t.Errorf("update unknown: got %v, want ErrNotFound", err)
	}

	if err := h.c.Snooze(ctx, g.ID, 15); err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	_, st, err := h.c.Geofence(ctx, g.ID)
	if err != nil || st.SnoozeUntil == nil {
		t.Errorf("expected snooze set, got %+v (%v)", st, err)
	}
	if err := h.c.Snooze(ctx, "ghost", 15); !errors.Is(err, ErrNotFound) {
		t.Errorf("snooze unknown: got %v, want ErrNotFound", err)
	}
	if err := h.c.Snooze(ctx, g.ID, 0); !errors.Is(err, ErrInvalid) {
		t.Errorf("snooze zero minutes: got %v, want ErrInvalid", err)
	}
	if err := h.c.Unsnooze(ctx, g.ID); err != nil {
		t.Fatalf("Unsnooze: %v", err)
	}

	s := geofence.DefaultSettings()
	s.DwellSeconds = 45
	if err := h.c.UpdateSettings(ctx, s); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	s.BatteryMode = "turbo"
	if err := h.c.UpdateSettings(ctx, s); !errors.Is(err, ErrInvalid) {
		t.Errorf("invalid settings: got %v, want ErrInvalid", err)
	}

	snap, err := h.c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Settings.DwellSeconds != 45 || len(snap.Geofences) != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	if err := h.c.DeleteGeofence(ctx, g.ID); err != nil {
		t.Fatalf("DeleteGeofence: %v", err)
	}
	if got := regionIDs(h.src.CommandsNamed(signal.CmdStopMonitoring)); !sameIDs(got, g.ID) {
		t.Errorf("stop_monitoring: got %v", got)
	}
	if err := h.c.DeleteGeofence(ctx, g.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}

	if err := h.c.ClearLogs(ctx); err != nil {
		t.Fatalf("ClearLogs: %v", err)
	}
	if h.log.Len() != 0 {
		t.Errorf("expected empty log, got %d entries", h.log.Len())
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.src.CommandsNamed(signal.CmdStopAll)) != 1 {
		t.Error("expected stop_all on shutdown")
	}
	if err := h.c.ClearLogs(ctx); !errors.Is(err, ErrStopped) {
		t.Errorf("control after stop: got %v, want ErrStopped", err)
	}
}

func TestRunConfirmsWithRealTimers(t *testing.T) {
	s := geofence.DefaultSettings()
	s.DwellSeconds = 1
	h, _, _ := runHarness(t, s, fence("home", 0, 0, 0))

	h.src.Emit(signal.Event{Kind: signal.KindRegionEntered, RegionID: "home"})

	waitFor(t, "entry notification", func() bool { return len(h.notifier.Notifications()) == 1 })
	waitFor(t, "inside status", func() bool {
		snap := h.tracker.Snapshot()
		return len(snap.Geofences) == 1 && snap.Geofences[0].State == geofence.StateInside
	})
	if n := h.notifier.Notifications()[0]; n.EventType != logic.EventEntry || n.GeofenceID != "home" {
		t.Errorf("unexpected notification: %+v", n)
	}
}

func TestUpdateSettingsBatteryModeRestartsAcquisition(t *testing.T) {
	h, _, _ := runHarness(t, geofence.DefaultSettings(), fence("a", 0, 0, 0))
	ctx := context.Background()
	if _, err := h.c.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	h.src.Reset()

	s := geofence.DefaultSettings()
	s.BatteryMode = geofence.BatteryLow
	if err := h.c.UpdateSettings(ctx, s); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	got := commandNames(h.src.Commands())
	want := []string{signal.CmdStopAll, signal.CmdRequestState, signal.CmdStartSignificantChange}
	if !sameIDs(got, want...) {
		t.Errorf("commands: got %v, want %v", got, want)
	}
}
