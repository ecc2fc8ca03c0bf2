// Package config loads daemon configuration from defaults, an optional YAML
// file and GEOSENTINEL_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
)

// EnvPrefix is the environment variable prefix: GEOSENTINEL_STORE_BACKEND → store.backend.
const EnvPrefix = "GEOSENTINEL"

// Config holds all daemon configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Settings SettingsConfig `mapstructure:"settings"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the status server
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Backend    string `mapstructure:"backend"` // sqlite, redis or memory
	SQLitePath string `mapstructure:"sqlite_path"`
	RedisURL   string `mapstructure:"redis_url"`
	Key        string `mapstructure:"key"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type NATSConfig struct {
	URL       string `mapstructure:"url"`
	JetStream bool   `mapstructure:"jetstream"`
}

type NotifyConfig struct {
	Backends []string `mapstructure:"backends"` // any of log, mqtt, nats
}

type MonitorConfig struct {
	Signal    string        `mapstructure:"signal"` // mqtt or none
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

// SettingsConfig seeds the user settings when the store holds none.
type SettingsConfig struct {
	DwellSeconds        int    `mapstructure:"dwell_seconds"`
	ExitDebounceSeconds int    `mapstructure:"exit_debounce_seconds"`
	MaxMonitoredRegions int    `mapstructure:"max_monitored_regions"`
	SignificantChange   bool   `mapstructure:"significant_change"`
	VisitMonitoring     bool   `mapstructure:"visit_monitoring"`
	BatteryMode         string `mapstructure:"battery_mode"`
	RecenterSeconds     int    `mapstructure:"recenter_seconds"`
}

// Geofence converts the seed settings to the registry type.
func (s SettingsConfig) Geofence() geofence.Settings {
	return geofence.Settings{
		DwellSeconds:        s.DwellSeconds,
		ExitDebounceSeconds: s.ExitDebounceSeconds,
		MaxMonitoredRegions: s.MaxMonitoredRegions,
		SignificantChange:   s.SignificantChange,
		VisitMonitoring:     s.VisitMonitoring,
		BatteryMode:         geofence.BatteryMode(s.BatteryMode),
		RecenterSeconds:     s.RecenterSeconds,
	}
}

func setDefaults(v *viper.Viper) {
	d := geofence.DefaultSettings()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite_path", "data/geosentinel.db")
	v.SetDefault("store.redis_url", "redis://localhost:6379/0")
	v.SetDefault("store.key", "geosentinel/registry")
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "geosentinel")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.jetstream", false)
	v.SetDefault("notify.backends", []string{"log"})
	v.SetDefault("monitor.signal", "mqtt")
	v.SetDefault("monitor.heartbeat", 15*time.Minute)
	v.SetDefault("settings.dwell_seconds", d.DwellSeconds)
	v.SetDefault("settings.exit_debounce_seconds", d.ExitDebounceSeconds)
	v.SetDefault("settings.max_monitored_regions", d.MaxMonitoredRegions)
	v.SetDefault("settings.significant_change", d.SignificantChange)
	v.SetDefault("settings.visit_monitoring", d.VisitMonitoring)
	v.SetDefault("settings.battery_mode", string(d.BatteryMode))
	v.SetDefault("settings.recenter_seconds", d.RecenterSeconds)
}

// Load reads configuration. path names a YAML file; when empty, config.yaml
// is looked up in the working directory and ./configs and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		_ = v.ReadInConfig() // OK if missing
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// A comma separated env value arrives as a single element.
	cfg.Notify.Backends = splitList(cfg.Notify.Backends)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

// Uses reports whether backend is listed in notify.backends.
func (c *Config) Uses(backend string) bool {
	for _, b := range c.Notify.Backends {
		if b == backend {
			return true
		}
	}
	return false
}

// Validate checks that configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Backend {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite backend")
		}
	case "redis":
		if c.Store.RedisURL == "" {
			errs = append(errs, "store.redis_url is required for the redis backend")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("store.backend must be sqlite, redis or memory, got %q", c.Store.Backend))
	}
	if c.Store.Key == "" {
		errs = append(errs, "store.key is required")
	}

	for _, b := range c.Notify.Backends {
		switch b {
		case "log", "mqtt", "nats":
		default:
			errs = append(errs, fmt.Sprintf("notify.backends: unknown backend %q", b))
		}
	}
	if c.Uses("nats") && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when notifying over nats")
	}

	switch c.Monitor.Signal {
	case "mqtt", "none":
	default:
		errs = append(errs, fmt.Sprintf("monitor.signal must be mqtt or none, got %q", c.Monitor.Signal))
	}
	if (c.Monitor.Signal == "mqtt" || c.Uses("mqtt")) && c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	}
	if c.Monitor.Heartbeat < 0 {
		errs = append(errs, "monitor.heartbeat must not be negative")
	}

	s := c.Settings
	if s.DwellSeconds <= 0 {
		errs = append(errs, "settings.dwell_seconds must be positive")
	}
	if s.ExitDebounceSeconds <= 0 {
		errs = append(errs, "settings.exit_debounce_seconds must be positive")
	}
	if s.MaxMonitoredRegions < 0 {
		errs = append(errs, "settings.max_monitored_regions must not be negative")
	}
	if !geofence.BatteryMode(s.BatteryMode).Valid() {
		errs = append(errs, fmt.Sprintf("settings.battery_mode must be high, balanced or low, got %q", s.BatteryMode))
	}
	if s.RecenterSeconds <= 0 {
		errs = append(errs, "settings.recenter_seconds must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
