// Package cache provides the in-memory evaluation cache used by the SDK.
// Results are memoized per flag key and stamped with a generation counter so
// that a full invalidation is a single atomic increment.
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/heimdall-go/internal/observability"
	"github.com/rafaeljc/heimdall-go/internal/ruleengine"
)

// ErrInvalidCapacity is returned when the cache is configured without room for entries.
var ErrInvalidCapacity = errors.New("cache capacity must be positive")

type entry struct {
	generation uint64
	result     ruleengine.CachedResult
}

// EvaluationCache acts as the memoization layer of the engine using a
// high-performance, contention-free algorithm (S3-FIFO) provided by 'otter'.
// It implements ruleengine.ResultCache.
type EvaluationCache struct {
	store      otter.Cache[string, entry]
	generation atomic.Uint64
}

// New initializes the cache with strict limits.
// capacity: Max number of items (Hard Cap to prevent OOM).
// ttl: Time-To-Live for items; zero disables expiry.
func New(capacity int, ttl time.Duration) (*EvaluationCache, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	builder := otter.MustBuilder[string, entry](capacity).CollectStats()

	var (
		store otter.Cache[string, entry]
		err   error
	)
	if ttl > 0 {
		store, err = builder.WithTTL(ttl).Build()
	} else {
		store, err = builder.Build()
	}
	if err != nil {
		return nil, err
	}

	return &EvaluationCache{store: store}, nil
}

// Get returns the memoized result for flagKey.
// Entries written under an older generation are reported as misses.
func (c *EvaluationCache) Get(flagKey string) (ruleengine.CachedResult, bool) {
	e, ok := c.store.Get(flagKey)
	if !ok || e.generation != c.generation.Load() {
		observability.CacheMisses.Inc()
		return ruleengine.CachedResult{}, false
	}
	observability.CacheHits.Inc()
	return e.result, true
}

// Put memoizes result if generation is still current. A result computed
// before an invalidation is silently dropped.
func (c *EvaluationCache) Put(flagKey string, generation uint64, result ruleengine.CachedResult) {
	if generation != c.generation.Load() {
		return
	}
	c.store.Set(flagKey, entry{generation: generation, result: result})
}

// Generation returns the current invalidation generation.
func (c *EvaluationCache) Generation() uint64 {
	return c.generation.Load()
}

// InvalidateAll hides every entry by bumping the generation. It is safe to
// call concurrently with Get and Put. Stale entries are not removed here:
// otter's Clear must not run alongside other operations, so they are
// overwritten by the next Put for the same key or leave through capacity
// eviction and TTL.
func (c *EvaluationCache) InvalidateAll() {
	c.generation.Add(1)
	observability.CacheInvalidations.Inc()
}

// Len returns the number of stored entries, stale generations included.
func (c *EvaluationCache) Len() int {
	return c.store.Size()
}

// Close gracefully shuts down the cache and its background cleanup goroutines.
func (c *EvaluationCache) Close() {
	c.store.Close()
}

// RunMetricsCollector publishes size and eviction statistics every interval
// until ctx is cancelled.
func (c *EvaluationCache) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastEvicted int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.CacheUsage.Set(float64(c.store.Size()))

			evicted := c.store.Stats().EvictedCount()
			if delta := evicted - lastEvicted; delta > 0 {
				observability.CacheEvictions.Add(float64(delta))
			}
			lastEvicted = evicted
		}
	}
}
