// Command geosentinel watches geofences for a single device: it consumes
// location callbacks, debounces region transitions and dispatches arrival and
// departure notifications.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/config"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/coordinator"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/eventlog"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/logging"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/metrics"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/mqtt"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/natsadapter"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/notify"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/signal"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/status"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/store"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/web"
)

// statusRefresh is how often the lifecycle loop refreshes connection state
// and checks whether a heartbeat is due.
const statusRefresh = time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config.yaml if present)")
	printConfig := flag.Bool("print-config", false, "Print the resolved configuration and exit")
	flag.Parse()

	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if *printConfig {
		fmt.Printf("%+v\n", redacted(*cfg))
		return
	}

	if err := run(cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// redacted returns a copy of cfg with credentials masked.
func redacted(cfg config.Config) config.Config {
	if cfg.MQTT.Password != "" {
		cfg.MQTT.Password = "xxxxx"
	}
	cfg.Store.RedisURL = redactURL(cfg.Store.RedisURL)
	cfg.NATS.URL = redactURL(cfg.NATS.URL)
	return cfg
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	defaults := cfg.Settings.Geofence()
	reg := geofence.NewRegistry(defaults)
	reg.Restore(store.LoadOrDefault(ctx, st, defaults))
	slog.Info("store: loaded registry", "backend", cfg.Store.Backend, "geofences", reg.Len())

	// One broker connection carries notifications and lifecycle events.
	var system mqtt.SystemPublisher = logSystem{}
	var mqttStatus mqtt.ConnectionStatus
	var publisher *mqtt.RealPublisher
	if cfg.Uses("mqtt") || cfg.Monitor.Signal == "mqtt" {
		publisher, err = mqtt.NewRealPublisher(mqttOptions(cfg.MQTT))
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer publisher.Close()
		system = publisher
		mqttStatus = publisher
	}

	notifier, closeNotifiers, err := buildNotifier(cfg, publisher)
	if err != nil {
		return err
	}
	defer closeNotifiers()

	src, err := openSource(cfg)
	if err != nil {
		return fmt.Errorf("init signal source: %w", err)
	}
	defer src.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		HeartbeatMs:  cfg.Monitor.Heartbeat.Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTP.Addr,
		StoreBackend: cfg.Store.Backend,
		SignalSource: cfg.Monitor.Signal,
		Notifiers:    cfg.Notify.Backends,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}

	evlog := eventlog.New(eventlog.DefaultCapacity, nil)
	coord := coordinator.New(coordinator.Options{
		Registry: reg,
		Source:   src,
		Notifier: notifier,
		Store:    st,
		Log:      evlog,
		Tracker:  tracker,
		Metrics:  metrics.New(prometheus.DefaultRegisterer),
	})

	coordDone := make(chan error, 1)
	go func() { coordDone <- coord.Run(ctx) }()

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := system.PublishSystem(startupEvent); err != nil {
		slog.Warn("lifecycle: publish startup event", "error", err)
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, coord, evlog, promhttp.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http: server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			srv.Shutdown(shutdownCtx)
		}()
		slog.Info("http: listening", "addr", cfg.HTTP.Addr)
	}

	slog.Info("started",
		"store", cfg.Store.Backend,
		"signal", cfg.Monitor.Signal,
		"notifiers", cfg.Notify.Backends,
		"heartbeat", cfg.Monitor.Heartbeat)

	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// The coordinator stops monitoring before the shutdown event goes out so
	// the published snapshot reflects the final state.
	stopCoordinator := func() error {
		cancel()
		return <-coordDone
	}
	return runLoop(system, mqttStatus, tracker, stopCoordinator, cfg.Monitor.Heartbeat, time.Now, ticker.C, sigCh, coordDone)
}

// runLoop publishes heartbeats and keeps connection state fresh until a
// signal arrives or the coordinator exits on its own.
func runLoop(publisher mqtt.SystemPublisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, stop func() error, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, coordDone <-chan error) error {
	lastHeartbeat := now()

	refresh := func() {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case s := <-sig:
			slog.Info("received signal, shutting down", "signal", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if err := stop(); err != nil {
				slog.Warn("coordinator: stop", "error", err)
			}
			refresh()
			snap := tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := publisher.PublishSystem(event); err != nil {
				slog.Warn("lifecycle: publish shutdown event", "error", err)
			} else {
				slog.Info("lifecycle: published shutdown event")
			}
			return nil

		case err := <-coordDone:
			if err == nil {
				err = errors.New("coordinator exited")
			}
			return err

		case <-tick:
			t := now()
			refresh()
			if heartbeat <= 0 || t.Sub(lastHeartbeat) < heartbeat {
				continue
			}
			lastHeartbeat = t

			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			slog.Info("heartbeat",
				"uptime", snap.Uptime().Truncate(time.Second),
				"monitored", snap.Monitored,
				"entries", snap.Counts.Entries,
				"exits", snap.Counts.Exits)

			hbEvent := mqtt.SystemEvent{
				Timestamp:  t,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				slog.Warn("lifecycle: heartbeat publish", "error", err)
			}
		}
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return store.NewSQLiteStore(store.WithDSN(cfg.SQLitePath), store.WithKey(cfg.Key))
	case "redis":
		return store.NewRedisStore(ctx, store.WithDSN(cfg.RedisURL), store.WithKey(cfg.Key))
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func mqttOptions(cfg config.MQTTConfig) mqtt.Options {
	return mqtt.Options{
		Broker:   cfg.Broker,
		ClientID: cfg.ClientID,
		Username: cfg.Username,
		Password: cfg.Password,
	}
}

// buildNotifier fans notifications out to every configured backend.
func buildNotifier(cfg *config.Config, publisher *mqtt.RealPublisher) (notify.Notifier, func(), error) {
	var multi notify.Multi
	var closers []func() error
	for _, b := range cfg.Notify.Backends {
		switch b {
		case "log":
			multi = append(multi, notify.LogNotifier{})
		case "mqtt":
			if publisher == nil {
				return nil, nil, errors.New("mqtt notifier requires a broker connection")
			}
			multi = append(multi, publisher)
		case "nats":
			p, err := natsadapter.NewPublisher(cfg.NATS.URL, cfg.NATS.JetStream)
			if err != nil {
				for _, c := range closers {
					c()
				}
				return nil, nil, fmt.Errorf("init nats: %w", err)
			}
			multi = append(multi, p)
			closers = append(closers, p.Close)
		}
	}
	if len(multi) == 0 {
		multi = append(multi, notify.LogNotifier{})
	}
	return multi, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func openSource(cfg *config.Config) (signal.Source, error) {
	if cfg.Monitor.Signal == "none" {
		// Nothing feeds the engine; geofences can still be managed over HTTP.
		slog.Warn("signal: no source configured, running without location input")
		return signal.NewFakeSource(), nil
	}
	return mqtt.NewSource(mqttOptions(cfg.MQTT))
}

// logSystem records lifecycle events in the log when no broker is configured.
type logSystem struct{}

func (logSystem) PublishSystem(event mqtt.SystemEvent) error {
	slog.Info("lifecycle: "+event.Event, "reason", event.Reason)
	return nil
}

func (logSystem) Close() error { return nil }

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
