package support

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ramp-quote-go/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Clock func() time.Time

type Fetcher[T any] func(ctx context.Context) (T, error)

const defaultFetchTimeout = 30 * time.Second

type cacheOptions struct {
	now          Clock
	recorder     metrics.Recorder
	fetchTimeout time.Duration
}

type CacheOption func(*cacheOptions)

func WithClock(now Clock) CacheOption {
	return func(o *cacheOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func WithRecorder(recorder metrics.Recorder) CacheOption {
	return func(o *cacheOptions) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// WithFetchTimeout bounds a single refresh. The refresh outlives the caller
// that started it, so this is its only deadline.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(o *cacheOptions) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// Cache holds one provider's support data for a TTL. A failed refresh keeps
// the previous data in place and the next Get tries again.
type Cache[T any] struct {
	name  string
	ttl   time.Duration
	fetch Fetcher[T]
	opts  cacheOptions

	mu        sync.RWMutex
	data      T
	loaded    bool
	fetchedAt time.Time

	group singleflight.Group
}

func NewCache[T any](name string, ttl time.Duration, fetch Fetcher[T], opts ...CacheOption) *Cache[T] {
	o := cacheOptions{now: time.Now, recorder: metrics.NoopRecorder{}, fetchTimeout: defaultFetchTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{name: name, ttl: ttl, fetch: fetch, opts: o}
}

func (c *Cache[T]) fresh() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loaded && c.opts.now().Sub(c.fetchedAt) < c.ttl {
		return c.data, true
	}
	var zero T
	return zero, false
}

// Get returns cached data while it is younger than the TTL, otherwise it
// refreshes. Concurrent refreshes share one fetch, which is detached from any
// single caller's cancellation; each caller stops waiting when its own ctx ends.
func (c *Cache[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if data, ok := c.fresh(); ok {
		return data, nil
	}

	ch := c.group.DoChan(c.name, func() (interface{}, error) {
		if data, ok := c.fresh(); ok {
			return data, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.fetchTimeout)
		defer cancel()

		start := c.opts.now()
		data, err := c.fetch(fetchCtx)
		c.opts.recorder.ObserveLatency(metrics.SupportRefresh, c.opts.now().Sub(start), map[string]string{"provider": c.name})
		if err != nil {
			c.mu.RLock()
			stale, loaded, fetchedAt := c.data, c.loaded, c.fetchedAt
			c.mu.RUnlock()

			c.opts.recorder.IncCounter(metrics.SupportRefresh, map[string]string{"provider": c.name, "outcome": "error"})
			if loaded {
				c.opts.recorder.IncCounter(metrics.SupportStale, map[string]string{"provider": c.name})
				zap.L().Warn("Support refresh failed, serving stale data",
					zap.String("provider", c.name),
					zap.Time("fetched_at", fetchedAt),
					zap.Error(err))
				return stale, nil
			}
			return nil, fmt.Errorf("unable to refresh %s support data: %w", c.name, err)
		}

		c.mu.Lock()
		c.data = data
		c.loaded = true
		c.fetchedAt = c.opts.now()
		c.mu.Unlock()

		c.opts.recorder.IncCounter(metrics.SupportRefresh, map[string]string{"provider": c.name, "outcome": "ok"})
		zap.L().Debug("Support data refreshed", zap.String("provider", c.name))
		return data, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Peek returns whatever is cached without refreshing.
func (c *Cache[T]) Peek() (T, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data, c.fetchedAt, c.loaded
}

// Invalidate forces the next Get to refresh while keeping the data as a
// stale fallback.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
}

func (c *Cache[T]) Name() string {
	return c.name
}

// Warm refreshes the cache if it is stale; used by the background warmup loop.
func (c *Cache[T]) Warm(ctx context.Context) error {
	_, err := c.Get(ctx)
	return err
}
