package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event            string         `json:"event,omitempty"`
	Reason           string         `json:"reason,omitempty"`
	Monitoring       bool           `json:"monitoring"`
	Authorization    string         `json:"authorization"`
	Location         *LocationJSON  `json:"location,omitempty"`
	UptimeSeconds    int64          `json:"uptime_seconds"`
	StartTime        string         `json:"start_time"`
	Timestamp        string         `json:"timestamp"`
	MQTT             MQTTStatus     `json:"mqtt"`
	Counts           CountsJSON     `json:"event_counts"`
	MonitoredRegions int            `json:"monitored_regions"`
	ExcludedRegions  int            `json:"excluded_regions"`
	ArmedTimers      int            `json:"armed_timers"`
	Geofences        []GeofenceJSON `json:"geofences"`
	Settings         SettingsJSON   `json:"settings"`
	Network          *NetworkJSON   `json:"network,omitempty"`
	Config           ConfigJSON     `json:"config"`
}

// LocationJSON is the last known location.
type LocationJSON struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Entries        int `json:"entries"`
	Exits          int `json:"exits"`
	DwellCancelled int `json:"dwell_cancelled"`
	ExitCancelled  int `json:"exit_cancelled"`
	SnoozedDrops   int `json:"snoozed_drops"`
}

// GeofenceJSON is one geofence with its presence state.
type GeofenceJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Priority    int    `json:"priority"`
	Enabled     bool   `json:"enabled"`
	Monitored   bool   `json:"monitored"`
	State       string `json:"state"`
	Snoozing    bool   `json:"snoozing"`
	SnoozeUntil string `json:"snooze_until,omitempty"`
	LastEntry   string `json:"last_entry,omitempty"`
	LastExit    string `json:"last_exit,omitempty"`
	DwellArmed  bool   `json:"dwell_armed"`
	ExitArmed   bool   `json:"exit_armed"`
}

// SettingsJSON is the JSON representation of the user settings.
type SettingsJSON struct {
	DwellSeconds        int    `json:"dwell_seconds"`
	ExitDebounceSeconds int    `json:"exit_debounce_seconds"`
	MaxMonitoredRegions int    `json:"max_monitored_regions"`
	SignificantChange   bool   `json:"significant_change"`
	VisitMonitoring     bool   `json:"visit_monitoring"`
	BatteryMode         string `json:"battery_mode"`
	RecenterSeconds     int    `json:"recenter_seconds"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HeartbeatMs  int64    `json:"heartbeat_ms"`
	Broker       string   `json:"broker"`
	HTTPAddr     string   `json:"http_addr"`
	StoreBackend string   `json:"store_backend"`
	SignalSource string   `json:"signal_source"`
	Notifiers    []string `json:"notifiers"`
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	auth := snap.Authorization
	if auth == "" {
		auth = "not_determined"
	}

	fences := make([]GeofenceJSON, 0, len(snap.Geofences))
	for _, f := range snap.Geofences {
		state := string(f.State)
		if state == "" {
			state = "unknown"
		}
		fences = append(fences, GeofenceJSON{
			ID:          f.ID,
			Name:        f.Name,
			Priority:    f.Priority,
			Enabled:     f.Enabled,
			Monitored:   f.Monitored,
			State:       state,
			Snoozing:    f.Snoozing,
			SnoozeUntil: formatTime(f.SnoozeUntil),
			LastEntry:   formatTime(f.LastEntry),
			LastExit:    formatTime(f.LastExit),
			DwellArmed:  f.DwellArmed,
			ExitArmed:   f.ExitArmed,
		})
	}

	notifiers := snap.Config.Notifiers
	if notifiers == nil {
		notifiers = []string{}
	}

	inner := StatusInner{
		Monitoring:       snap.Running,
		Authorization:    auth,
		UptimeSeconds:    int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:        snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:        snap.Now.UTC().Format(time.RFC3339),
		MQTT:             MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		MonitoredRegions: snap.Monitored,
		ExcludedRegions:  snap.Excluded,
		ArmedTimers:      snap.ArmedTimers,
		Geofences:        fences,
		Counts: CountsJSON{
			Entries:        snap.Counts.Entries,
			Exits:          snap.Counts.Exits,
			DwellCancelled: snap.Counts.DwellCancelled,
			ExitCancelled:  snap.Counts.ExitCancelled,
			SnoozedDrops:   snap.Counts.SnoozedDrops,
		},
		Settings: SettingsJSON{
			DwellSeconds:        snap.Settings.DwellSeconds,
			ExitDebounceSeconds: snap.Settings.ExitDebounceSeconds,
			MaxMonitoredRegions: snap.Settings.MaxMonitoredRegions,
			SignificantChange:   snap.Settings.SignificantChange,
			VisitMonitoring:     snap.Settings.VisitMonitoring,
			BatteryMode:         string(snap.Settings.BatteryMode),
			RecenterSeconds:     snap.Settings.RecenterSeconds,
		},
		Config: ConfigJSON{
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
			StoreBackend: snap.Config.StoreBackend,
			SignalSource: snap.Config.SignalSource,
			Notifiers:    notifiers,
		},
	}
	if snap.Location != nil {
		inner.Location = &LocationJSON{Lat: snap.Location.Lat, Lon: snap.Location.Lon}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
