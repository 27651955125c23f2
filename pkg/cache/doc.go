// Package cache provides the two-tier read cache for the order API.
//
// The cache combines a bounded in-process LRU tier with an optional
// shared Redis tier:
//
// - L1: in-process, capacity-bounded, LRU-ordered, per-entry TTL
// - L2: Redis, longer-lived, shared across API processes
// - L2 hits are promoted back into L1 ("self-healing" hot set)
// - Pattern invalidation ('*' and '?' globs) across both tiers
// - Tier failures always degrade to a miss or no-op, never an error
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	tc := cache.New(cache.Config{
//		L1Capacity: 1000,
//		DefaultTTL: 5 * time.Minute,
//		Redis:      redisClient, // nil for memory-only mode
//	})
//
//	key := cache.PageKey("products", "all", 2, 20) // "products:all:2:20"
//
//	products, ok := cache.Get[[]Product](ctx, tc, key)
//	if !ok {
//		// miss - fetch from the document store, then:
//		tc.Set(ctx, key, products, 5*time.Minute)
//	}
//
// # Write-path invalidation
//
// Handlers invalidate matching keys after a successful write:
//
//	tc.InvalidatePattern(ctx, "products:*")
//
// The glob is applied once to the in-memory key list and once, as a
// Redis MATCH pattern, to the remote keyspace scan.
//
// # Metrics
//
//   - savoria_cache_hits_total{tier} - hits by tier (memory, redis)
//   - savoria_cache_misses_total - misses
//   - savoria_cache_entries{tier} - current entry count
//   - savoria_cache_evictions_total - LRU capacity evictions
//   - savoria_cache_invalidated_keys_total - keys removed by pattern
//   - savoria_cache_errors_total{operation} - swallowed tier errors
package cache
