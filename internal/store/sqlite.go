package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Opts configures a backend.
type Opts struct {
	DSN string
	Key string
}

// Option mutates Opts.
type Option func(*Opts)

// WithDSN sets the connection string (SQLite file path or Redis URL).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithKey sets the key the document is stored under.
func WithKey(key string) Option {
	return func(o *Opts) { o.Key = key }
}

func applyOpts(opts []Option) Opts {
	cfg := Opts{Key: DefaultKey}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// SQLiteStore keeps the document in a single-row key-value table.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// NewSQLiteStore opens (and migrates) the SQLite database at the DSN path.
// The directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := applyOpts(opts)
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	if !strings.HasPrefix(cfg.DSN, "file:") && cfg.DSN != ":memory:" {
		dir := filepath.Dir(cfg.DSN)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps in-memory databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("store: sqlite ready", "dsn", cfg.DSN)

	return &SQLiteStore{db: db, key: cfg.Key}, nil
}

// Load reads and decodes the document.
func (s *SQLiteStore) Load(ctx context.Context) (geofence.Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, s.key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return geofence.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return geofence.Snapshot{}, fmt.Errorf("query %s: %w", s.key, err)
	}
	return Decode(data)
}

// Save encodes and upserts the document.
func (s *SQLiteStore) Save(ctx context.Context, snap geofence.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		s.key, data)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", s.key, err)
	}
	return nil
}

// RawValue returns the stored bytes for the document key.
func (s *SQLiteStore) RawValue(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, s.key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return data, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
