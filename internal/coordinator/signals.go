package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/eventlog"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/logic"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/notify"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/signal"
)

// coarseAccuracy separates coarse (cell/wifi) fixes from fine (GPS) ones.
const coarseAccuracy = 100.0

func (c *Coordinator) handleSignal(ev signal.Event) {
	c.metrics.RawSignal(string(ev.Kind))
	now := c.now()

	switch ev.Kind {
	case signal.KindRegionEntered:
		c.engine.RawEnter(ev.RegionID, now)

	case signal.KindRegionExited:
		c.engine.RawExit(ev.RegionID, now)

	case signal.KindRegionState:
		c.engine.Determine(ev.RegionID, ev.State, now)

	case signal.KindVisit:
		c.log.Append(eventlog.KindVisit, "", fmt.Sprintf("visit at %.5f,%.5f", ev.Location.Lat, ev.Location.Lon))
		for _, id := range c.monitoredIDs() {
			c.requestState(id)
		}

	case signal.KindLocationUpdated:
		c.locationUpdated(ev)

	case signal.KindAuthorizationChanged:
		c.authorizationChanged(ev.Authorization)

	case signal.KindMonitoringFailed:
		slog.Warn("coordinator: region monitoring failed", "geofence_id", ev.RegionID, "error", ev.Err)
		c.log.Append(eventlog.KindError, c.nameOf(ev.RegionID), fmt.Sprintf("monitoring failed: %s", ev.Err))

	case signal.KindError:
		slog.Warn("coordinator: location error", "error", ev.Err)
		c.log.Append(eventlog.KindError, "", fmt.Sprintf("location error: %s", ev.Err))

	default:
		slog.Debug("coordinator: ignoring signal", "kind", ev.Kind)
	}
}

func (c *Coordinator) locationUpdated(ev signal.Event) {
	loc := ev.Location
	c.location = &loc

	if c.reg.Settings().BatteryMode == geofence.BatteryLow {
		c.log.Append(eventlog.KindSignificantChange, "", fmt.Sprintf("location %.5f,%.5f", loc.Lat, loc.Lon))
	}
	if ev.Accuracy > 0 {
		if c.accuracy > 0 && (c.accuracy > coarseAccuracy) != (ev.Accuracy > coarseAccuracy) {
			c.log.Append(eventlog.KindAccuracyChange, "", fmt.Sprintf("accuracy %.0fm -> %.0fm", c.accuracy, ev.Accuracy))
		}
		c.accuracy = ev.Accuracy
	}
}

func (c *Coordinator) authorizationChanged(auth signal.Authorization) {
	prev := c.auth
	c.auth = auth
	c.log.Append(eventlog.KindAuthChange, "", fmt.Sprintf("authorization %s -> %s", prev, auth))

	switch {
	case auth == prev && c.running:
	case auth.Authorized():
		c.start()
	case auth == signal.AuthDenied && c.running:
		c.stop()
	}
}

// fire delivers a timer firing to the engine and dispatches the confirmed
// event, if any.
func (c *Coordinator) fire(ctx context.Context, f logic.Fire) {
	ev := c.engine.Fire(f, c.now())
	if ev == nil {
		return
	}
	c.metrics.Transition(string(ev.Type))
	slog.Info("coordinator: presence confirmed", "geofence_id", ev.GeofenceID, "event", ev.Type, "notify", ev.Notify)
	if !ev.Notify {
		return
	}

	n := notify.FromEvent(*ev)
	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	err := c.notifier.Notify(nctx, n)
	c.metrics.Notified(err)
	if err != nil {
		slog.Error("coordinator: notify", "geofence_id", ev.GeofenceID, "error", err)
		c.log.Append(eventlog.KindError, ev.GeofenceName, fmt.Sprintf("notification failed: %v", err))
		return
	}
	c.log.Append(eventlog.KindNotification, ev.GeofenceName, n.Title)
}
