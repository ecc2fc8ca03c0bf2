package coordinator

import (
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/status"
)

// publish pushes the current state to the tracker and metrics.
func (c *Coordinator) publish() {
	counts := c.engine.Counts()
	c.metrics.Cancelled("dwell", counts.DwellCancelled-c.counts.DwellCancelled)
	c.metrics.Cancelled("exit", counts.ExitCancelled-c.counts.ExitCancelled)
	c.metrics.Snoozed(counts.SnoozedDrops - c.counts.SnoozedDrops)
	c.metrics.SetArmed(c.engine.ArmedCount())
	c.counts = counts

	if c.tracker != nil {
		c.tracker.Update(c.view())
	}
}

func (c *Coordinator) view() status.Monitor {
	now := c.now()
	fences := c.reg.List()
	views := make([]status.FenceView, 0, len(fences))
	for _, g := range fences {
		st := c.reg.StatusOf(g.ID)
		dwell, exit := c.engine.Armed(g.ID)
		_, monitored := c.monitored[g.ID]
		v := status.FenceView{
			ID:         g.ID,
			Name:       g.Name,
			Priority:   g.Priority,
			Enabled:    g.Enabled,
			Monitored:  monitored,
			State:      st.State,
			Snoozing:   geofence.IsSnoozing(st, now),
			LastEntry:  st.LastEntry,
			LastExit:   st.LastExit,
			DwellArmed: dwell,
			ExitArmed:  exit,
		}
		if v.Snoozing {
			v.SnoozeUntil = st.SnoozeUntil
		}
		views = append(views, v)
	}

	var loc *geofence.Coordinate
	if c.location != nil {
		l := *c.location
		loc = &l
	}
	return status.Monitor{
		Running:       c.running,
		Authorization: string(c.auth),
		Location:      loc,
		Geofences:     views,
		Monitored:     len(c.monitored),
		Excluded:      c.excluded,
		ArmedTimers:   c.engine.ArmedCount(),
		Settings:      c.reg.Settings(),
		Counts:        c.engine.Counts(),
	}
}
