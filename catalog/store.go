package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// snapshotKey is the Redis key holding the serialized snapshot.
const snapshotKey = "dispatch:catalog:snapshot"

// RedisStoreConfig holds configuration for the Redis snapshot store.
type RedisStoreConfig struct {
	// Addr is the Redis address.
	Addr string
	// Password is the Redis password.
	Password string
	// DB is the Redis database number.
	DB int
	// TTL bounds how long a persisted snapshot stays loadable.
	TTL time.Duration
}

// RedisStore persists catalog snapshots in Redis so a restarted process can
// serve a stale-but-available catalog while the registry is down.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed snapshot store and verifies the
// connection.
func NewRedisStore(config RedisStoreConfig, logger *zap.Logger) (*RedisStore, error) {
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		ttl:    config.TTL,
		logger: logger.With(zap.String("component", "snapshot_store")),
	}, nil
}

// SaveSnapshot serializes and stores the snapshot under the configured TTL.
func (s *RedisStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot retrieves the persisted snapshot. Returns ErrSnapshotNotFound
// when none exists.
func (s *RedisStore) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if err == redis.Nil {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ SnapshotStore = (*RedisStore)(nil)
