// Package status provides a thread-safe status tracker for the geosentinel daemon.
// The coordinator writes it after every processed event; HTTP handlers and
// lifecycle publishers read it.
package status

import (
	"sync"
	"time"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/logic"
)

// NetworkInfo contains host network state, when the host exports it.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	HeartbeatMs  int64
	Broker       string
	HTTPAddr     string
	StoreBackend string
	SignalSource string
	Notifiers    []string
}

// FenceView is one geofence with its presence state.
type FenceView struct {
	ID          string
	Name        string
	Priority    int
	Enabled     bool
	Monitored   bool
	State       geofence.State
	Snoozing    bool
	SnoozeUntil *time.Time
	LastEntry   *time.Time
	LastExit    *time.Time
	DwellArmed  bool
	ExitArmed   bool
}

// Monitor is the coordinator-owned part of the status.
type Monitor struct {
	Running       bool
	Authorization string
	Location      *geofence.Coordinate
	Geofences     []FenceView
	Monitored     int
	Excluded      int
	ArmedTimers   int
	Settings      geofence.Settings
	Counts        logic.EventCounts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Monitor
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces the coordinator-owned part of the status. The tracker
// keeps m's slices; callers must not modify them afterwards.
func (t *Tracker) Update(m Monitor) {
	t.mu.Lock()
	t.snap.Monitor = m
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
