// Package signal abstracts the location subsystem: it delivers raw region and
// location events and accepts monitoring commands.
// The MQTT implementation lives in internal/mqtt; the fake allows testing
// without a device.
package signal

import (
	"time"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
)

// Kind identifies the type of an Event.
type Kind string

const (
	KindAuthorizationChanged Kind = "authorization_changed"
	KindLocationUpdated      Kind = "location_updated"
	KindRegionEntered        Kind = "region_entered"
	KindRegionExited         Kind = "region_exited"
	KindRegionState          Kind = "region_state"
	KindVisit                Kind = "visit"
	KindMonitoringFailed     Kind = "monitoring_failed"
	KindError                Kind = "error"
)

// Authorization is the location permission level reported by the device.
type Authorization string

const (
	AuthAlways        Authorization = "always"
	AuthWhenInUse     Authorization = "when_in_use"
	AuthDenied        Authorization = "denied"
	AuthNotDetermined Authorization = "not_determined"
)

// Authorized reports whether monitoring can run under a.
func (a Authorization) Authorized() bool {
	return a == AuthAlways || a == AuthWhenInUse
}

// Event is a single callback from the location subsystem. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind          Kind
	RegionID      string
	State         geofence.State      // KindRegionState: inside, outside or unknown
	Location      geofence.Coordinate // KindLocationUpdated, KindVisit
	Accuracy      float64             // meters, KindLocationUpdated
	Arrival       time.Time           // KindVisit
	Departure     time.Time           // KindVisit
	Authorization Authorization       // KindAuthorizationChanged
	Err           string              // KindMonitoringFailed, KindError
}

// Command names, as recorded by FakeSource and sent on the wire by the MQTT source.
const (
	CmdStartMonitoring        = "start_monitoring"
	CmdStopMonitoring         = "stop_monitoring"
	CmdRequestState           = "request_state"
	CmdStartContinuous        = "start_continuous"
	CmdStartSignificantChange = "start_significant_change"
	CmdStartVisitMonitoring   = "start_visit_monitoring"
	CmdStopAll                = "stop_all"
)

// Region is a monitoring request for one geofence.
type Region struct {
	ID     string
	Center geofence.Coordinate
	Radius float64
}

// RegionFor converts a geofence to a monitoring request.
func RegionFor(g geofence.Geofence) Region {
	return Region{ID: g.ID, Center: g.Center, Radius: g.Radius}
}

// Source is the location subsystem as seen by the coordinator.
type Source interface {
	// Events delivers callbacks in arrival order. Closed when the source closes.
	Events() <-chan Event

	StartMonitoring(r Region) error
	StopMonitoring(regionID string) error
	RequestState(regionID string) error
	StartContinuousUpdates() error
	StartSignificantChangeUpdates() error
	StartVisitMonitoring() error
	StopAll() error

	// Close releases the source.
	Close() error
}
