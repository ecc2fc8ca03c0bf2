package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
)

// RedisStore keeps the document under a single Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects using the DSN as a Redis URL and pings the server.
func NewRedisStore(ctx context.Context, opts ...Option) (*RedisStore, error) {
	cfg := applyOpts(opts)
	if cfg.DSN == "" {
		return nil, fmt.Errorf("redis URL not set")
	}
	ropts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.Key), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{client: client, key: key}
}

// Load reads and decodes the document.
func (s *RedisStore) Load(ctx context.Context) (geofence.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return geofence.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return geofence.Snapshot{}, fmt.Errorf("get %s: %w", s.key, err)
	}
	return Decode(data)
}

// Save encodes and stores the document without expiry.
func (s *RedisStore) Save(ctx context.Context, snap geofence.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", s.key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
