// Package cache holds the two process-wide shared caches: the plan cache
// (fingerprint -> retrieval plan) and the narrative cache (user ->
// conversation-opening summary). Both collapse concurrent misses for the
// same key into a single in-flight computation.
package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/theapemachine/mnemos/pkg/plan"
)

// DefaultPlanTTL is how long a model-derived plan stays reusable.
const DefaultPlanTTL = 30 * time.Minute

// PlanCache maps normalized message fingerprints to previously computed
// retrieval plans, bounded by count and TTL. Expired entries are never
// returned; admission and eviction are handled by ristretto.
type PlanCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewPlanCache creates a plan cache holding at most maxEntries plans.
func NewPlanCache(maxEntries int64, ttl time.Duration) (*PlanCache, error) {
	if ttl <= 0 {
		ttl = DefaultPlanTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &PlanCache{
		cache: cache,
		ttl:   ttl,
	}, nil
}

// Get returns the cached plan for a fingerprint, if present and unexpired.
func (c *PlanCache) Get(fingerprint string) (*plan.Plan, bool) {
	value, ok := c.cache.Get(fingerprint)
	if !ok {
		return nil, false
	}

	cached, ok := value.(*plan.Plan)
	return cached, ok
}

// Set stores a plan under a fingerprint with the cache TTL. It waits for the
// admission buffers to drain so a Set is visible to the next Get.
func (c *PlanCache) Set(fingerprint string, p *plan.Plan) {
	c.cache.SetWithTTL(fingerprint, p, 1, c.ttl)
	c.cache.Wait()
}

// GetOrCompute returns the cached plan for a fingerprint or computes it.
// Concurrent misses on the same fingerprint share one compute call. The
// compute function reports whether its result should be cached; heuristic
// fallback plans are not.
func (c *PlanCache) GetOrCompute(
	ctx context.Context,
	fingerprint string,
	compute func(ctx context.Context) (*plan.Plan, bool, error),
) (*plan.Plan, error) {
	if cached, ok := c.Get(fingerprint); ok {
		return cached, nil
	}

	result, err, _ := c.group.Do(fingerprint, func() (any, error) {
		// A waiter may have populated the cache while we queued.
		if cached, ok := c.Get(fingerprint); ok {
			return cached, nil
		}

		computed, cacheable, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		if cacheable {
			c.Set(fingerprint, computed)
		}

		return computed, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*plan.Plan), nil
}

// Close releases the underlying cache.
func (c *PlanCache) Close() {
	c.cache.Close()
}
