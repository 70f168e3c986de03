package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubFetcher counts fetches and returns canned snapshots or errors.
type stubFetcher struct {
	mu    sync.Mutex
	snaps []*Snapshot
	err   error
	calls int
}

func (s *stubFetcher) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	snap := s.snaps[0]
	if len(s.snaps) > 1 {
		s.snaps = s.snaps[1:]
	}
	return snap, nil
}

func (s *stubFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// memStore is an in-memory SnapshotStore.
type memStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

func (m *memStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	return nil
}

func (m *memStore) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, ErrSnapshotNotFound
	}
	return m.snap, nil
}

func snapshotWith(ids ...string) *Snapshot {
	agents := make([]AgentDescriptor, 0, len(ids))
	for _, id := range ids {
		agents = append(agents, AgentDescriptor{ID: id, Alive: true})
	}
	return &Snapshot{Agents: agents, CapturedAt: time.Now()}
}

func TestCache_ServesWithinTTLWithoutFetch(t *testing.T) {
	fetcher := &stubFetcher{snaps: []*Snapshot{snapshotWith("alerts")}}
	cache := NewCache(fetcher, nil, CacheConfig{TTL: time.Minute}, zap.NewNop())

	ctx := context.Background()
	first, err := cache.GetCatalog(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.callCount())

	// Repeated reads inside the TTL return the identical snapshot with no
	// further fetches.
	for i := 0; i < 10; i++ {
		snap, err := cache.GetCatalog(ctx)
		require.NoError(t, err)
		assert.Same(t, first, snap)
	}
	assert.Equal(t, 1, fetcher.callCount())
}

func TestCache_RefreshesAfterTTL(t *testing.T) {
	old := snapshotWith("alerts")
	old.CapturedAt = time.Now().Add(-2 * time.Minute)
	fresh := snapshotWith("alerts", "planner")

	fetcher := &stubFetcher{snaps: []*Snapshot{old, fresh}}
	cache := NewCache(fetcher, nil, CacheConfig{TTL: time.Minute}, zap.NewNop())

	ctx := context.Background()
	snap, err := cache.GetCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Agents, 1)

	// The first snapshot was captured before the TTL window, so the next
	// read refreshes.
	snap, err = cache.GetCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Agents, 2)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestCache_ServesStaleOnRefreshFailure(t *testing.T) {
	stale := snapshotWith("alerts")
	stale.CapturedAt = time.Now().Add(-2 * time.Minute)

	fetcher := &stubFetcher{snaps: []*Snapshot{stale}}
	cache := NewCache(fetcher, nil, CacheConfig{TTL: time.Minute}, zap.NewNop())

	ctx := context.Background()
	_, err := cache.GetCatalog(ctx)
	require.NoError(t, err)

	fetcher.mu.Lock()
	fetcher.err = errors.New("registry down")
	fetcher.mu.Unlock()

	snap, err := cache.GetCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alerts", snap.Agents[0].ID)
}

func TestCache_ColdStartFailurePropagates(t *testing.T) {
	fetcher := &stubFetcher{err: ErrRegistryUnavailable}
	cache := NewCache(fetcher, nil, CacheConfig{TTL: time.Minute}, zap.NewNop())

	_, err := cache.GetCatalog(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
}

func TestCache_ColdStartWarmsFromStore(t *testing.T) {
	store := &memStore{snap: snapshotWith("alerts", "planner")}
	fetcher := &stubFetcher{err: errors.New("registry down")}
	cache := NewCache(fetcher, store, CacheConfig{TTL: time.Minute}, zap.NewNop())

	snap, err := cache.GetCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Agents, 2)
}

func TestCache_PersistsOnRefresh(t *testing.T) {
	store := &memStore{}
	fetcher := &stubFetcher{snaps: []*Snapshot{snapshotWith("alerts")}}
	cache := NewCache(fetcher, store, CacheConfig{TTL: time.Minute}, zap.NewNop())

	_, err := cache.GetCatalog(context.Background())
	require.NoError(t, err)

	saved, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alerts", saved.Agents[0].ID)
}

func TestCache_ConcurrentExpiryFetchesOnce(t *testing.T) {
	fetcher := &stubFetcher{snaps: []*Snapshot{snapshotWith("alerts")}}
	cache := NewCache(fetcher, nil, CacheConfig{TTL: time.Minute}, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.GetCatalog(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fetcher.callCount())
}
