package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/eventlog"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
)

func validGeofence(g geofence.Geofence) error {
	switch {
	case g.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalid)
	case g.Radius <= 0:
		return fmt.Errorf("%w: radius must be positive", ErrInvalid)
	case !g.Center.Valid():
		return fmt.Errorf("%w: center out of range", ErrInvalid)
	}
	return nil
}

func validSettings(s geofence.Settings) error {
	switch {
	case s.DwellSeconds <= 0:
		return fmt.Errorf("%w: dwell_seconds must be positive", ErrInvalid)
	case s.ExitDebounceSeconds <= 0:
		return fmt.Errorf("%w: exit_debounce_seconds must be positive", ErrInvalid)
	case s.MaxMonitoredRegions < 0:
		return fmt.Errorf("%w: max_monitored_regions must not be negative", ErrInvalid)
	case !s.BatteryMode.Valid():
		return fmt.Errorf("%w: unknown battery_mode %q", ErrInvalid, s.BatteryMode)
	case s.RecenterSeconds <= 0:
		return fmt.Errorf("%w: recenter_seconds must be positive", ErrInvalid)
	}
	return nil
}

// AddGeofence registers a new geofence. An empty ID is replaced by a random
// UUID. Returns the stored geofence.
func (c *Coordinator) AddGeofence(ctx context.Context, g geofence.Geofence) (geofence.Geofence, error) {
	if err := validGeofence(g); err != nil {
		return geofence.Geofence{}, err
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	var err error
	doErr := c.do(ctx, func() {
		if _, exists := c.reg.Get(g.ID); exists {
			err = fmt.Errorf("%w: geofence %s already exists", ErrInvalid, g.ID)
			return
		}
		c.reg.Put(g)
		c.persist()
		c.log.Append(eventlog.KindSystem, g.Name, "geofence added")
		if c.running {
			c.reselect()
		}
	})
	if doErr != nil {
		return geofence.Geofence{}, doErr
	}
	if err != nil {
		return geofence.Geofence{}, err
	}
	return g, nil
}

// UpdateGeofence replaces an existing geofence definition. Its presence
// state is kept.
func (c *Coordinator) UpdateGeofence(ctx context.Context, g geofence.Geofence) error {
	if err := validGeofence(g); err != nil {
		return err
	}
	var err error
	doErr := c.do(ctx, func() {
		if _, exists := c.reg.Get(g.ID); !exists {
			err = ErrNotFound
			return
		}
		c.reg.Put(g)
		c.persist()
		c.log.Append(eventlog.KindSystem, g.Name, "geofence updated")
		if c.running {
			c.reselect()
		}
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// DeleteGeofence removes a geofence, its state and its timers.
func (c *Coordinator) DeleteGeofence(ctx context.Context, id string) error {
	var err error
	doErr := c.do(ctx, func() {
		g, exists := c.reg.Get(id)
		if !exists {
			err = ErrNotFound
			return
		}
		c.engine.Forget(id)
		c.reg.Delete(id)
		c.persist()
		c.log.Append(eventlog.KindSystem, g.Name, "geofence deleted")
		if c.running {
			c.reselect()
		}
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Snooze suppresses raw signals and notifications for id for the given
// number of minutes.
func (c *Coordinator) Snooze(ctx context.Context, id string, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: minutes must be positive", ErrInvalid)
	}
	var ok bool
	if err := c.do(ctx, func() { ok = c.engine.Snooze(id, minutes, c.now()) }); err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Unsnooze clears a snooze on id.
func (c *Coordinator) Unsnooze(ctx context.Context, id string) error {
	var ok bool
	if err := c.do(ctx, func() { ok = c.engine.Unsnooze(id) }); err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// ClearLogs empties the event log.
func (c *Coordinator) ClearLogs(ctx context.Context) error {
	return c.do(ctx, c.log.Clear)
}

// UpdateSettings replaces the user settings. Changes to the acquisition
// mode restart monitoring; a capacity change re-selects regions.
func (c *Coordinator) UpdateSettings(ctx context.Context, s geofence.Settings) error {
	if err := validSettings(s); err != nil {
		return err
	}
	return c.do(ctx, func() {
		prev := c.reg.Settings()
		if prev == s {
			return
		}
		c.reg.SetSettings(s)
		c.persist()
		c.log.Append(eventlog.KindSystem, "", fmt.Sprintf("settings updated: dwell %ds, exit debounce %ds, max regions %d, battery %s",
			s.DwellSeconds, s.ExitDebounceSeconds, s.MaxMonitoredRegions, s.BatteryMode))

		if prev.RecenterSeconds != s.RecenterSeconds && c.recenter != nil {
			c.recenter.Reset(c.recenterInterval())
		}
		if !c.running {
			return
		}
		switch {
		case prev.BatteryMode != s.BatteryMode ||
			prev.SignificantChange != s.SignificantChange ||
			prev.VisitMonitoring != s.VisitMonitoring:
			c.start()
		case prev.MaxMonitoredRegions != s.MaxMonitoredRegions:
			c.reselect()
		}
	})
}

// Snapshot returns a copy of the registry.
func (c *Coordinator) Snapshot(ctx context.Context) (geofence.Snapshot, error) {
	var snap geofence.Snapshot
	err := c.do(ctx, func() { snap = c.reg.Snapshot() })
	return snap, err
}

// Geofence returns one geofence with its state.
func (c *Coordinator) Geofence(ctx context.Context, id string) (geofence.Geofence, geofence.Status, error) {
	var (
		g     geofence.Geofence
		st    geofence.Status
		found bool
	)
	if err := c.do(ctx, func() {
		g, found = c.reg.Get(id)
		st = c.reg.StatusOf(id)
	}); err != nil {
		return g, st, err
	}
	if !found {
		return g, st, ErrNotFound
	}
	return g, st, nil
}
