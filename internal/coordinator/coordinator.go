// Package coordinator owns the monitoring loop. It is the single goroutine
// that touches the geofence registry and the debounce engine: signal-source
// events, timer firings, control requests and recentring ticks are all
// processed here, one at a time.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/eventlog"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/logic"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/metrics"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/notify"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/selector"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/signal"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/status"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/store"
)

const (
	saveTimeout   = 5 * time.Second
	notifyTimeout = 10 * time.Second
	firesBuffer   = 64
)

var (
	// ErrNotFound is returned by controls that name an unknown geofence.
	ErrNotFound = errors.New("geofence not found")
	// ErrInvalid is returned by controls given invalid input.
	ErrInvalid = errors.New("invalid input")
	// ErrStopped is returned by controls after Run has returned.
	ErrStopped = errors.New("coordinator stopped")
)

// Options are the collaborators of a Coordinator. Registry, Source, Notifier,
// Store and Log are required.
type Options struct {
	Registry *geofence.Registry
	Source   signal.Source
	Notifier notify.Notifier
	Store    store.Store
	Log      *eventlog.Log

	Tracker *status.Tracker  // optional
	Metrics *metrics.Metrics // optional

	// Now defaults to time.Now.
	Now func() time.Time
	// Scheduler overrides the real timer scheduler. Tests pass a
	// logic.FakeScheduler and deliver firings themselves.
	Scheduler logic.Scheduler
}

type request struct {
	fn   func()
	done chan struct{}
}

// Coordinator drives the debounce engine from a signal source.
type Coordinator struct {
	reg      *geofence.Registry
	engine   *logic.Engine
	src      signal.Source
	notifier notify.Notifier
	store    store.Store
	log      *eventlog.Log
	tracker  *status.Tracker
	metrics  *metrics.Metrics
	now      func() time.Time

	fires    chan logic.Fire
	controls chan request
	done     chan struct{}
	recenter *time.Ticker

	running   bool
	monitored map[string]signal.Region
	excluded  int
	location  *geofence.Coordinate
	accuracy  float64
	auth      signal.Authorization
	counts    logic.EventCounts // last counts pushed to metrics
}

// New creates a Coordinator. The registry must already be restored from the store.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		reg:       opts.Registry,
		src:       opts.Source,
		notifier:  opts.Notifier,
		store:     opts.Store,
		log:       opts.Log,
		tracker:   opts.Tracker,
		metrics:   opts.Metrics,
		now:       opts.Now,
		fires:     make(chan logic.Fire, firesBuffer),
		controls:  make(chan request),
		done:      make(chan struct{}),
		monitored: make(map[string]signal.Region),
		auth:      signal.AuthNotDetermined,
	}
	if c.now == nil {
		c.now = time.Now
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = timerScheduler{fires: c.fires, done: c.done}
	}
	c.engine = logic.NewEngine(c.reg, sched, c.log, c.persist)
	return c
}

// Run starts monitoring and processes events until ctx is cancelled, then
// stops monitoring. It must be called once.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)

	c.recenter = time.NewTicker(c.recenterInterval())
	defer c.recenter.Stop()

	c.log.Append(eventlog.KindSystem, "", "monitoring service started")
	c.start()
	c.publish()

	events := c.src.Events()
	for {
		select {
		case <-ctx.Done():
			c.stop()
			c.log.Append(eventlog.KindSystem, "", "monitoring service stopped")
			c.publish()
			return nil

		case ev, ok := <-events:
			if !ok {
				slog.Warn("coordinator: signal source closed")
				c.log.Append(eventlog.KindError, "", "signal source closed")
				events = nil
				continue
			}
			c.handleSignal(ev)

		case f := <-c.fires:
			c.fire(ctx, f)

		case req := <-c.controls:
			req.fn()
			close(req.done)

		case <-c.recenter.C:
			c.recenterTick()
		}
		c.publish()
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (c *Coordinator) do(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case c.controls <- req:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once accepted the request always runs to completion.
	<-req.done
	return nil
}

func (c *Coordinator) recenterInterval() time.Duration {
	secs := c.reg.Settings().RecenterSeconds
	if secs <= 0 {
		secs = geofence.DefaultSettings().RecenterSeconds
	}
	return time.Duration(secs) * time.Second
}

// start performs a full reset. Timers are cancelled and any running
// acquisition is stopped. Regions that were monitored are queried for
// ground truth, the monitored set is re-selected and the acquisition mode
// is applied. Pending geofences left unmonitored fall back to unknown.
func (c *Coordinator) start() {
	c.engine.CancelAll()
	if c.running {
		if err := c.src.StopAll(); err != nil {
			c.sourceError("stop all", "", err)
		}
	}

	for _, id := range c.monitoredIDs() {
		c.requestState(id)
	}
	c.reselect()
	for _, g := range c.reg.List() {
		if _, ok := c.monitored[g.ID]; ok {
			continue
		}
		c.engine.Abandon(g.ID)
	}
	c.startAcquisition()
	c.running = true
}

// stop cancels every armed timer and unmonitors every monitored region.
func (c *Coordinator) stop() {
	c.engine.CancelAll()
	for _, id := range c.monitoredIDs() {
		if err := c.src.StopMonitoring(id); err != nil {
			c.sourceError("stop monitoring", id, err)
		}
		delete(c.monitored, id)
	}
	if err := c.src.StopAll(); err != nil {
		c.sourceError("stop all", "", err)
	}
	c.running = false
}

func (c *Coordinator) startAcquisition() {
	s := c.reg.Settings()
	if s.BatteryMode == geofence.BatteryLow {
		if err := c.src.StartSignificantChangeUpdates(); err != nil {
			c.sourceError("significant-change updates", "", err)
		}
	} else {
		if err := c.src.StartContinuousUpdates(); err != nil {
			c.sourceError("continuous updates", "", err)
		}
		if s.SignificantChange {
			if err := c.src.StartSignificantChangeUpdates(); err != nil {
				c.sourceError("significant-change updates", "", err)
			}
		}
	}
	if s.VisitMonitoring {
		if err := c.src.StartVisitMonitoring(); err != nil {
			c.sourceError("visit monitoring", "", err)
		}
	}
}

// reselect runs region selection and commands the difference against the
// currently monitored set. Newly monitored regions are queried for state.
func (c *Coordinator) reselect() {
	res := selector.Select(c.reg.List(), c.location, selector.Capacity(c.reg.Settings()))

	want := make(map[string]signal.Region, len(res.Selected))
	for _, g := range res.Selected {
		want[g.ID] = signal.RegionFor(g)
	}

	for _, id := range c.monitoredIDs() {
		if _, ok := want[id]; ok {
			continue
		}
		if err := c.src.StopMonitoring(id); err != nil {
			c.sourceError("stop monitoring", id, err)
		}
		delete(c.monitored, id)
	}

	added := 0
	for _, g := range res.Selected {
		r := want[g.ID]
		if cur, ok := c.monitored[g.ID]; ok && cur == r {
			continue
		}
		if err := c.src.StartMonitoring(r); err != nil {
			c.sourceError("start monitoring", g.ID, err)
			continue
		}
		c.monitored[g.ID] = r
		added++
		c.requestState(g.ID)
	}

	c.excluded = res.Excluded
	if res.Excluded > 0 {
		slog.Warn("coordinator: region capacity exceeded", "monitored", len(res.Selected), "excluded", res.Excluded)
		c.log.Append(eventlog.KindRegionMonitoring, "", fmt.Sprintf("monitoring %d regions, %d excluded by capacity", len(res.Selected), res.Excluded))
	} else if added > 0 {
		c.log.Append(eventlog.KindRegionMonitoring, "", fmt.Sprintf("monitoring %d regions", len(c.monitored)))
	}
	c.metrics.SetMonitored(len(c.monitored))
}

func (c *Coordinator) recenterTick() {
	if !c.running || c.location == nil || c.reg.Settings().BatteryMode != geofence.BatteryLow {
		return
	}
	c.reselect()
}

func (c *Coordinator) requestState(id string) {
	if err := c.src.RequestState(id); err != nil {
		c.sourceError("request state", id, err)
	}
}

func (c *Coordinator) monitoredIDs() []string {
	ids := make([]string, 0, len(c.monitored))
	for id := range c.monitored {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// persist writes the whole registry through to the store. Failures are
// logged and processing continues.
func (c *Coordinator) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := c.store.Save(ctx, c.reg.Snapshot()); err != nil {
		slog.Error("coordinator: save registry", "error", err)
		c.log.Append(eventlog.KindError, "", fmt.Sprintf("save failed: %v", err))
	}
}

func (c *Coordinator) sourceError(op, id string, err error) {
	name := c.nameOf(id)
	slog.Warn("coordinator: signal source command failed", "op", op, "geofence_id", id, "error", err)
	c.log.Append(eventlog.KindError, name, fmt.Sprintf("%s: %v", op, err))
}

func (c *Coordinator) nameOf(id string) string {
	if g, ok := c.reg.Get(id); ok {
		return g.Name
	}
	return id
}
