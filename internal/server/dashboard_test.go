package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/duckling/internal/task"
)

func TestDashboardCounts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.registerRepo()

	f.createTask()
	f.seedTask(task.StatusFailed)
	f.seedTask(task.StatusCompleted)
	f.seedTask(task.StatusCompleted)

	rr := f.request(http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	d := decode[Dashboard](t, rr)

	assert.Equal(t, 4, d.Total)
	assert.Equal(t, 1, d.Pending)
	assert.Equal(t, 1, d.Failed)
	assert.Equal(t, 2, d.Completed)
	assert.Equal(t, 0, d.InProgress)
	require.Len(t, d.Recent, 4)
	assert.Equal(t, int64(4), d.Recent[0].ID, "recent tasks are newest first")
}

func TestDashboardRecentIsCapped(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.registerRepo()

	for i := 0; i < recentTaskLimit+3; i++ {
		f.seedTask(task.StatusPending)
	}

	rr := f.request(http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	d := decode[Dashboard](t, rr)

	assert.Equal(t, recentTaskLimit+3, d.Total)
	assert.Len(t, d.Recent, recentTaskLimit)
}

func TestDashboardCachesUntilMutation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.registerRepo()
	// Rule out TTL expiry so the test only exercises invalidation.
	f.srv.dashboard = newDashboardCache(f.store, time.Minute)

	rr := f.request(http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, decode[Dashboard](t, rr).Total)

	// A write that bypasses the handlers is invisible until the TTL
	// expires or a handler mutation invalidates the cache.
	f.seedTask(task.StatusPending)
	rr = f.request(http.MethodGet, "/api/dashboard", nil)
	assert.Equal(t, 0, decode[Dashboard](t, rr).Total)

	// A handler mutation invalidates immediately.
	f.createTask()
	rr = f.request(http.MethodGet, "/api/dashboard", nil)
	assert.Equal(t, 2, decode[Dashboard](t, rr).Total)
}

// countingStore counts dashboard rebuilds and makes each one slow enough
// for concurrent callers to pile up.
type countingStore struct {
	Store
	loads atomic.Int32
}

func (c *countingStore) CountTasksByStatus(ctx context.Context) (map[task.Status]int, error) {
	c.loads.Add(1)
	time.Sleep(25 * time.Millisecond)
	return c.Store.CountTasksByStatus(ctx)
}

func TestDashboardCacheCoalescesConcurrentLoads(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cs := &countingStore{Store: f.store}
	cache := newDashboardCache(cs, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), cs.loads.Load(), "concurrent gets share one rebuild")

	cache.Invalidate()
	_, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), cs.loads.Load())
}

type failingStore struct{ Store }

func (failingStore) CountTasksByStatus(context.Context) (map[task.Status]int, error) {
	return nil, errors.New("backend unavailable")
}

func TestDashboardCacheSurfacesStoreErrors(t *testing.T) {
	t.Parallel()
	cache := newDashboardCache(failingStore{}, time.Minute)

	_, err := cache.Get(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")
}
