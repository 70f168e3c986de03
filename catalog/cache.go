package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Fetcher retrieves a fresh catalog snapshot from the registry.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (*Snapshot, error)
}

// SnapshotStore persists the last good snapshot so a restarted process can
// warm-start while the registry is down. Implementations must tolerate
// ErrSnapshotNotFound as the empty case.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// CacheConfig holds configuration for the catalog cache.
type CacheConfig struct {
	// TTL is how long a snapshot is served without a refresh.
	TTL time.Duration
}

// DefaultCacheConfig returns a CacheConfig with the standard 5 minute TTL.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 5 * time.Minute}
}

// Cache serves catalog snapshots with a TTL window. The current snapshot is
// held behind an atomic pointer: readers always observe either no snapshot or
// a complete one, never a partial write. Refreshes are serialized so
// concurrent expiry triggers a single registry fetch.
type Cache struct {
	fetcher Fetcher
	store   SnapshotStore // optional, may be nil
	config  CacheConfig
	logger  *zap.Logger

	current   atomic.Pointer[Snapshot]
	refreshMu sync.Mutex
}

// NewCache creates a catalog cache. The store is optional; pass nil to
// disable warm-start persistence.
func NewCache(fetcher Fetcher, store SnapshotStore, config CacheConfig, logger *zap.Logger) *Cache {
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		fetcher: fetcher,
		store:   store,
		config:  config,
		logger:  logger.With(zap.String("component", "catalog_cache")),
	}
}

// GetCatalog returns the current snapshot. Inside the TTL window the cached
// snapshot is returned with zero network I/O. Past the TTL a refresh is
// attempted; if it fails and a stale snapshot exists, the stale snapshot is
// served and a warning logged. Only when no snapshot exists anywhere does the
// call fail with ErrRegistryUnavailable.
func (c *Cache) GetCatalog(ctx context.Context) (*Snapshot, error) {
	if snap := c.current.Load(); snap != nil && snap.Age(time.Now()) < c.config.TTL {
		return snap, nil
	}
	return c.refresh(ctx)
}

// Current returns the cached snapshot without triggering a refresh.
// It returns nil before the first successful refresh.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// refresh fetches a new snapshot, serializing concurrent callers. The first
// caller through performs the fetch; later callers observe the fresh
// snapshot and return immediately.
func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if snap := c.current.Load(); snap != nil && snap.Age(time.Now()) < c.config.TTL {
		return snap, nil
	}

	fresh, err := c.fetcher.FetchSnapshot(ctx)
	if err == nil {
		c.current.Store(fresh)
		c.persist(ctx, fresh)
		c.logger.Info("catalog refreshed",
			zap.Int("agents", len(fresh.Agents)),
		)
		return fresh, nil
	}

	// Stale-but-available: keep serving the previous snapshot.
	if stale := c.current.Load(); stale != nil {
		c.logger.Warn("catalog refresh failed, serving stale snapshot",
			zap.Duration("age", stale.Age(time.Now())),
			zap.Error(err),
		)
		return stale, nil
	}

	// Cold start with an unreachable registry: try the persisted snapshot
	// before giving up.
	if warmed := c.warmStart(ctx); warmed != nil {
		c.logger.Warn("registry unreachable on cold start, serving persisted snapshot",
			zap.Duration("age", warmed.Age(time.Now())),
			zap.Error(err),
		)
		return warmed, nil
	}

	return nil, err
}

// persist best-effort saves the snapshot to the store.
func (c *Cache) persist(ctx context.Context, snap *Snapshot) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveSnapshot(ctx, snap); err != nil {
		c.logger.Warn("failed to persist catalog snapshot", zap.Error(err))
	}
}

// warmStart loads the persisted snapshot, if any, into the cache.
func (c *Cache) warmStart(ctx context.Context) *Snapshot {
	if c.store == nil {
		return nil
	}
	snap, err := c.store.LoadSnapshot(ctx)
	if err != nil {
		if err != ErrSnapshotNotFound {
			c.logger.Warn("failed to load persisted catalog snapshot", zap.Error(err))
		}
		return nil
	}
	c.current.Store(snap)
	return snap
}
