package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
)

func sampleSnapshot() geofence.Snapshot {
	entered := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	pending := time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)
	snooze := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	settings := geofence.DefaultSettings()
	settings.BatteryMode = geofence.BatteryLow
	settings.VisitMonitoring = true

	return geofence.Snapshot{
		Geofences: []geofence.Geofence{
			{ID: "home", Name: "Home", Center: geofence.Coordinate{Lat: 43.263, Lon: -2.935}, Radius: 120, Priority: 3, Enabled: true, NotifyOnEntry: true},
			{ID: "work", Name: "Work", Center: geofence.Coordinate{Lat: 43.27, Lon: -2.94}, Radius: 80, Priority: 1, Enabled: false, NotifyOnExit: true},
		},
		States: map[string]geofence.Status{
			"work": {State: geofence.StatePendingExit, PendingExitSince: &pending, SnoozeUntil: &snooze},
			"home": {State: geofence.StateInside, LastEntry: &entered},
		},
		Settings: settings,
	}
}

func TestLoadSaveRoundTripIsByteIdentical(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, sampleSnapshot()))
	first := s.Raw()

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, snap))

	assert.Equal(t, string(first), string(s.Raw()))
}

func TestRoundTripThroughRegistry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, sampleSnapshot()))
	first := s.Raw()

	reg := geofence.NewRegistry(geofence.Settings{})
	reg.Restore(LoadOrDefault(ctx, s, geofence.DefaultSettings()))
	require.NoError(t, s.Save(ctx, reg.Snapshot()))

	assert.Equal(t, string(first), string(s.Raw()))
}

func TestEncodeEmptyUsesEmptyCollections(t *testing.T) {
	data, err := Encode(geofence.Snapshot{})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"geofences":[]`)
	assert.Contains(t, string(data), `"states":{}`)
}

func TestLoadOrDefaultMissing(t *testing.T) {
	defaults := geofence.DefaultSettings()
	snap := LoadOrDefault(context.Background(), NewMemoryStore(), defaults)
	assert.Empty(t, snap.Geofences)
	assert.Equal(t, defaults, snap.Settings)
}

func TestLoadOrDefaultCorrupt(t *testing.T) {
	s := NewMemoryStore()
	s.SetRaw([]byte(`{"geofences": [`))

	snap := LoadOrDefault(context.Background(), s, geofence.DefaultSettings())
	assert.Empty(t, snap.Geofences)
	assert.Equal(t, geofence.DefaultSettings(), snap.Settings)
}

func TestLoadOrDefaultMissingSettings(t *testing.T) {
	s := NewMemoryStore()
	s.SetRaw([]byte(`{"geofences":[{"id":"a","name":"A","center":{"lat":0,"lon":0},"radius":10,"priority":0,"enabled":true,"notify_on_entry":false,"notify_on_exit":false}],"states":{}}`))

	snap := LoadOrDefault(context.Background(), s, geofence.DefaultSettings())
	require.Len(t, snap.Geofences, 1)
	assert.Equal(t, geofence.DefaultSettings(), snap.Settings)
}

func TestLoadOrDefaultInvalidSettingsFields(t *testing.T) {
	s := NewMemoryStore()
	s.SetRaw([]byte(`{"geofences":[],"states":{},"settings":{"exit_debounce_seconds":90,"max_monitored_regions":5,"battery_mode":"turbo","visit_monitoring":true}}`))

	snap := LoadOrDefault(context.Background(), s, geofence.DefaultSettings())

	want := geofence.DefaultSettings()
	want.ExitDebounceSeconds = 90
	want.MaxMonitoredRegions = 5
	want.VisitMonitoring = true
	assert.Equal(t, want, snap.Settings)
	assert.Equal(t, 30*time.Second, snap.Settings.Dwell())
}

func TestMemoryStoreSaves(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(context.Background(), sampleSnapshot()))
	require.NoError(t, s.Save(context.Background(), sampleSnapshot()))
	assert.Equal(t, 2, s.Saves())
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "geosentinel.db")

	s, err := NewSQLiteStore(WithDSN(path))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	want := sampleSnapshot()
	require.NoError(t, s.Save(ctx, want))
	first, err := s.RawValue(ctx)
	require.NoError(t, err)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Geofences, 2)
	assert.Equal(t, geofence.StateInside, got.States["home"].State)
	assert.Equal(t, want.Settings, got.Settings)

	// Upsert replaces the single row.
	require.NoError(t, s.Save(ctx, got))
	second, err := s.RawValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "geosentinel.db")

	s, err := NewSQLiteStore(WithDSN(path), WithKey("custom"))
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sampleSnapshot()))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(WithDSN(path), WithKey("custom"))
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Geofences, 2)
}

func TestSQLiteStoreRequiresDSN(t *testing.T) {
	_, err := NewSQLiteStore()
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	// Requires a running Redis; set REDIS_URL (e.g. redis://localhost:6379/15).
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("env REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, WithDSN(url), WithKey("geosentinel/test"))
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer s.Close()
	defer s.client.Del(ctx, "geosentinel/test")

	require.NoError(t, s.Save(ctx, sampleSnapshot()))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Geofences, 2)
}

func TestRedisStoreRequiresURL(t *testing.T) {
	_, err := NewRedisStore(context.Background())
	assert.Error(t, err)
}
