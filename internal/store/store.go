// Package store persists the geofence registry (definitions, per-geofence
// state and settings) as a single JSON document in a key-value backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
)

// DefaultKey is the key the document is stored under.
const DefaultKey = "geosentinel/registry"

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("not found")

// Store loads and saves the registry document.
type Store interface {
	Load(ctx context.Context) (geofence.Snapshot, error)
	Save(ctx context.Context, snap geofence.Snapshot) error
	Close() error
}

// Encode serializes a snapshot. The output is deterministic: map keys are
// sorted and times keep their stored offset, so decoding and re-encoding an
// unmodified document reproduces the same bytes.
func Encode(snap geofence.Snapshot) ([]byte, error) {
	if snap.Geofences == nil {
		snap.Geofences = []geofence.Geofence{}
	}
	if snap.States == nil {
		snap.States = map[string]geofence.Status{}
	}
	return json.Marshal(snap)
}

// Decode parses a document produced by Encode.
func Decode(data []byte) (geofence.Snapshot, error) {
	var snap geofence.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return geofence.Snapshot{}, fmt.Errorf("decode registry: %w", err)
	}
	return snap, nil
}

// Empty returns the document used when nothing usable is stored.
func Empty(defaults geofence.Settings) geofence.Snapshot {
	return geofence.Snapshot{
		Geofences: []geofence.Geofence{},
		States:    map[string]geofence.Status{},
		Settings:  defaults,
	}
}

// LoadOrDefault loads the document, falling back to an empty one with the
// given settings when it is missing or corrupt. Stored settings fields that
// are out of range take the default. It never fails.
func LoadOrDefault(ctx context.Context, s Store, defaults geofence.Settings) geofence.Snapshot {
	snap, err := s.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("store: load failed, starting empty", "error", err)
		}
		return Empty(defaults)
	}
	if snap.Settings == (geofence.Settings{}) {
		snap.Settings = defaults
		return snap
	}
	if fixed := snap.Settings.WithDefaults(defaults); fixed != snap.Settings {
		slog.Warn("store: stored settings out of range, using defaults for those fields",
			"stored", snap.Settings, "using", fixed)
		snap.Settings = fixed
	}
	return snap
}

// MemoryStore keeps the encoded document in memory.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load decodes the stored document.
func (m *MemoryStore) Load(_ context.Context) (geofence.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return geofence.Snapshot{}, ErrNotFound
	}
	return Decode(m.data)
}

// Save encodes and stores snap.
func (m *MemoryStore) Save(_ context.Context, snap geofence.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	m.saves++
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// Raw returns the stored bytes.
func (m *MemoryStore) Raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// SetRaw replaces the stored bytes. Used to seed tests with hand-written or corrupt documents.
func (m *MemoryStore) SetRaw(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
}

// Saves returns how many times Save succeeded.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
