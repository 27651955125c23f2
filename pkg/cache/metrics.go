package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks cache hits by tier (memory, redis)
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savoria_cache_hits_total",
			Help: "Total number of cache hits by tier",
		},
		[]string{"tier"},
	)

	// cacheMisses tracks full cache misses (absent from both tiers)
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "savoria_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// cacheSize tracks entry count by tier
	cacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "savoria_cache_entries",
			Help: "Current number of cache entries by tier",
		},
		[]string{"tier"},
	)

	// cacheEvictions tracks L1 capacity evictions
	cacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "savoria_cache_evictions_total",
			Help: "Total number of LRU evictions from the memory tier",
		},
	)

	// cacheInvalidations tracks keys removed by pattern invalidation
	cacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "savoria_cache_invalidated_keys_total",
			Help: "Total number of keys removed by pattern invalidation",
		},
	)

	// cacheErrors tracks cache operation errors
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savoria_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "invalidate"
	)
)
