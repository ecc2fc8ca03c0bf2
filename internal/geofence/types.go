// Package geofence holds geofence definitions, per-geofence presence state and
// the monitoring settings. It is pure data plus a mutation API: no timers, no I/O.
package geofence

import "time"

// State is the confirmed (or pending) presence state of one geofence.
type State string

const (
	StateUnknown      State = "unknown"
	StatePendingEntry State = "pendingEntry"
	StateInside       State = "inside"
	StatePendingExit  State = "pendingExit"
	StateOutside      State = "outside"
)

// Valid reports whether s is one of the five known states.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StatePendingEntry, StateInside, StatePendingExit, StateOutside:
		return true
	}
	return false
}

// Coordinate is a WGS 84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate lies within latitude/longitude bounds.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Geofence is a circular region the user wants presence events for.
type Geofence struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Center        Coordinate `json:"center"`
	Radius        float64    `json:"radius"` // meters
	Priority      int        `json:"priority"`
	Enabled       bool       `json:"enabled"`
	NotifyOnEntry bool       `json:"notify_on_entry"`
	NotifyOnExit  bool       `json:"notify_on_exit"`
}

// Status is the mutable presence state of one geofence.
type Status struct {
	State             State      `json:"state"`
	PendingEntrySince *time.Time `json:"pending_entry_since,omitempty"`
	PendingExitSince  *time.Time `json:"pending_exit_since,omitempty"`
	LastEntry         *time.Time `json:"last_entry,omitempty"`
	LastExit          *time.Time `json:"last_exit,omitempty"`
	SnoozeUntil       *time.Time `json:"snooze_until,omitempty"`
}

// IsSnoozing reports whether the geofence is snoozed at now.
// Computed at every decision point; never cache the result.
func IsSnoozing(s Status, now time.Time) bool {
	return s.SnoozeUntil != nil && s.SnoozeUntil.After(now)
}

// BatteryMode selects how aggressively the location subsystem is used.
type BatteryMode string

const (
	BatteryHigh     BatteryMode = "high"
	BatteryBalanced BatteryMode = "balanced"
	BatteryLow      BatteryMode = "low"
)

// Valid reports whether m is a known battery mode.
func (m BatteryMode) Valid() bool {
	return m == BatteryHigh || m == BatteryBalanced || m == BatteryLow
}

// Settings are the user-tunable monitoring parameters.
type Settings struct {
	DwellSeconds        int         `json:"dwell_seconds"`
	ExitDebounceSeconds int         `json:"exit_debounce_seconds"`
	MaxMonitoredRegions int         `json:"max_monitored_regions"`
	SignificantChange   bool        `json:"significant_change"`
	VisitMonitoring     bool        `json:"visit_monitoring"`
	BatteryMode         BatteryMode `json:"battery_mode"`
	RecenterSeconds     int         `json:"recenter_seconds"`
}

// DefaultSettings returns the settings used when nothing has been stored yet.
func DefaultSettings() Settings {
	return Settings{
		DwellSeconds:        30,
		ExitDebounceSeconds: 60,
		MaxMonitoredRegions: 20,
		BatteryMode:         BatteryBalanced,
		RecenterSeconds:     300,
	}
}

// Dwell returns the entry confirmation window.
func (s Settings) Dwell() time.Duration {
	return time.Duration(s.DwellSeconds) * time.Second
}

// ExitDebounce returns the exit confirmation window.
func (s Settings) ExitDebounce() time.Duration {
	return time.Duration(s.ExitDebounceSeconds) * time.Second
}

// WithDefaults returns s with every out-of-range field replaced by the
// matching field of d.
func (s Settings) WithDefaults(d Settings) Settings {
	if s.DwellSeconds <= 0 {
		s.DwellSeconds = d.DwellSeconds
	}
	if s.ExitDebounceSeconds <= 0 {
		s.ExitDebounceSeconds = d.ExitDebounceSeconds
	}
	if s.MaxMonitoredRegions < 0 {
		s.MaxMonitoredRegions = d.MaxMonitoredRegions
	}
	if !s.BatteryMode.Valid() {
		s.BatteryMode = d.BatteryMode
	}
	if s.RecenterSeconds <= 0 {
		s.RecenterSeconds = d.RecenterSeconds
	}
	return s
}

// Snapshot is the persisted form of the registry.
type Snapshot struct {
	Geofences []Geofence        `json:"geofences"`
	States    map[string]Status `json:"states"`
	Settings  Settings          `json:"settings"`
}
