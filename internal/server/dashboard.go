package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/randalmurphal/duckling/internal/task"
)

const (
	// dashboardTTL bounds how stale the dashboard payload may get.
	dashboardTTL = 5 * time.Second

	// recentTaskLimit caps the task list embedded in the dashboard.
	recentTaskLimit = 10
)

// Dashboard is the GET /api/dashboard payload: per-status counts plus the
// most recently created tasks.
type Dashboard struct {
	Total          int         `json:"total"`
	Pending        int         `json:"pending"`
	InProgress     int         `json:"in_progress"`
	AwaitingReview int         `json:"awaiting_review"`
	Completed      int         `json:"completed"`
	Failed         int         `json:"failed"`
	Cancelled      int         `json:"cancelled"`
	Recent         []task.Task `json:"recent"`
}

// dashboardCache provides a TTL-based cache for the dashboard payload,
// with singleflight coalescing to prevent redundant concurrent loads.
type dashboardCache struct {
	mu       sync.RWMutex
	current  *Dashboard
	loadedAt time.Time
	ttl      time.Duration
	group    singleflight.Group
	store    Store
}

func newDashboardCache(store Store, ttl time.Duration) *dashboardCache {
	return &dashboardCache{
		store: store,
		ttl:   ttl,
	}
}

// Get returns the cached payload or rebuilds it from the store.
// Concurrent callers share a single rebuild via singleflight.
func (c *dashboardCache) Get(ctx context.Context) (*Dashboard, error) {
	c.mu.RLock()
	if c.current != nil && time.Since(c.loadedAt) < c.ttl {
		d := c.current
		c.mu.RUnlock()
		return d, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.group.Do("load", func() (any, error) {
		// Double-check after acquiring the singleflight slot: a racing
		// caller may have refreshed the cache already.
		c.mu.RLock()
		if c.current != nil && time.Since(c.loadedAt) < c.ttl {
			d := c.current
			c.mu.RUnlock()
			return d, nil
		}
		c.mu.RUnlock()

		d, err := c.build(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.current = d
		c.loadedAt = time.Now()
		c.mu.Unlock()

		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Dashboard), nil
}

// Invalidate clears the cache, forcing the next Get to rebuild.
func (c *dashboardCache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

func (c *dashboardCache) build(ctx context.Context) (*Dashboard, error) {
	counts, err := c.store.CountTasksByStatus(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := c.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	if len(tasks) > recentTaskLimit {
		tasks = tasks[:recentTaskLimit]
	}
	if tasks == nil {
		tasks = []task.Task{}
	}

	d := &Dashboard{
		Pending:        counts[task.StatusPending],
		InProgress:     counts[task.StatusInProgress],
		AwaitingReview: counts[task.StatusAwaitingReview],
		Completed:      counts[task.StatusCompleted],
		Failed:         counts[task.StatusFailed],
		Cancelled:      counts[task.StatusCancelled],
		Recent:         tasks,
	}
	for _, n := range counts {
		d.Total += n
	}
	return d, nil
}

// handleDashboard returns status counts and recent tasks.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.dashboard.Get(r.Context())
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, d)
}
