package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/savoria-app/order-api/pkg/logging"
)

// DefaultTTL is the fallback TTL when a call site passes a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// Config holds tiered cache configuration.
type Config struct {
	// L1Capacity is the maximum number of entries held in process.
	L1Capacity int

	// DefaultTTL applies when Set is called with a non-positive TTL.
	DefaultTTL time.Duration

	// Redis enables the remote tier when non-nil. With a nil client the
	// cache runs memory-only with no behavior change visible to callers.
	Redis *redis.Client

	// KeyPrefix namespaces this service's keys in the shared Redis keyspace.
	KeyPrefix string
}

// DefaultConfig returns a safe default configuration (memory-only).
func DefaultConfig() Config {
	return Config{
		L1Capacity: 1000,
		DefaultTTL: DefaultTTL,
		KeyPrefix:  "savoria:cache:",
	}
}

// Stats reports the cache's current occupancy, for observability only.
type Stats struct {
	L1Size     int  `json:"l1_size"`
	L1Capacity int  `json:"l1_capacity"`
	L2Enabled  bool `json:"l2_enabled"`
}

// TieredCache combines an in-process LRU tier (L1) with an optional
// shared Redis tier (L2).
//
// L1 removes network latency for hot keys within one process; L2 gives
// cross-process sharing and survives restarts. A value found only in L2
// is promoted back into L1, so L1 refills itself without a separate
// warming step. Each tier expires entries on its own clock; the small
// resulting staleness window is accepted.
//
// No tier error ever propagates to the caller: serialization or Redis
// failures degrade to a miss or a no-op, so calling code can always
// proceed as if the cache were cold.
type TieredCache struct {
	l1     *memoryTier
	redis  *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// New creates a tiered cache from the given configuration.
func New(cfg Config) *TieredCache {
	if cfg.L1Capacity <= 0 {
		cfg.L1Capacity = DefaultConfig().L1Capacity
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultConfig().KeyPrefix
	}

	return &TieredCache{
		l1:     newMemoryTier(cfg.L1Capacity),
		redis:  cfg.Redis,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.DefaultTTL,
		logger: logging.NewLogger("tiered-cache"),
	}
}

// GetRaw retrieves the serialized value for key, checking L1 first and
// falling back to L2. An L2 hit is promoted into L1 before returning.
// The second return value reports presence; absence is never an error.
func (c *TieredCache) GetRaw(ctx context.Context, key string) (json.RawMessage, bool) {
	if entry, ok := c.l1.get(key); ok {
		cacheHits.WithLabelValues("memory").Inc()
		return entry.Value, true
	}

	if c.redis == nil {
		cacheMisses.Inc()
		return nil, false
	}

	data, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			cacheErrors.WithLabelValues("get").Inc()
			c.logger.Warn().Err(err).Str("key", key).Msg("Redis get failed, treating as miss")
		}
		cacheMisses.Inc()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Corrupt cache entry, treating as miss")
		cacheMisses.Inc()
		return nil, false
	}

	if entry.IsExpired() {
		// Redis TTL should have removed it already; clock skew between
		// tiers can leave a brief remainder.
		_ = c.redis.Del(ctx, c.prefix+key).Err()
		cacheMisses.Inc()
		return nil, false
	}

	// Promote to L1. The entry keeps its own expiry, so the promoted
	// copy can never outlive its L2 source.
	c.l1.set(key, entry)
	cacheHits.WithLabelValues("redis").Inc()
	c.logger.Debug().Str("key", key).Dur("ttl", entry.TTL()).Msg("Promoted entry from Redis to memory")

	return entry.Value, true
}

// Set stores value in both tiers with the given TTL. A non-positive TTL
// falls back to the configured default. Tier failures are logged and
// swallowed; a cache write must never fail the request.
func (c *TieredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	raw, err := json.Marshal(value)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Value not serializable, skipping cache write")
		return
	}

	now := timeNow()
	entry := Entry{
		Value:    raw,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}

	c.l1.set(key, entry)
	cacheSize.WithLabelValues("memory").Set(float64(c.l1.len()))

	if c.redis == nil {
		return
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return
	}

	if err := c.redis.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Redis set failed, entry cached in memory only")
	}
}

// Delete removes key from both tiers.
func (c *TieredCache) Delete(ctx context.Context, key string) {
	c.l1.delete(key)

	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, c.prefix+key).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Redis delete failed")
	}
}

// InvalidatePattern deletes every key matching the glob pattern from
// both tiers and returns the number of keys removed. The pattern
// language supports '*' (any run of characters) and '?' (one character)
// and is anchored. This scans the keyspace, so it is reserved for the
// write path where it runs at low relative frequency.
func (c *TieredCache) InvalidatePattern(ctx context.Context, glob string) int {
	re, err := compileGlob(glob)
	if err != nil {
		cacheErrors.WithLabelValues("invalidate").Inc()
		c.logger.Warn().Err(err).Str("pattern", glob).Msg("Invalid invalidation pattern")
		return 0
	}

	// Count distinct keys: a key held in both tiers is one invalidation.
	fromL1 := c.l1.deleteMatching(re.MatchString)
	seen := make(map[string]struct{}, len(fromL1))
	for _, k := range fromL1 {
		seen[k] = struct{}{}
	}
	removed := len(fromL1)
	for _, k := range c.scanDelete(ctx, redisMatch(glob)) {
		if _, dup := seen[k]; !dup {
			removed++
		}
	}

	cacheInvalidations.Add(float64(removed))
	c.logger.Debug().Str("pattern", glob).Int("removed", removed).Msg("Invalidated cache pattern")

	return removed
}

// Clear empties both tiers.
func (c *TieredCache) Clear(ctx context.Context) {
	c.l1.clear()
	c.scanDelete(ctx, "*")
}

// scanDelete removes all Redis keys under this cache's prefix matching
// the given Redis MATCH pattern. Returns the removed keys with the
// prefix stripped; Redis failures degrade to a no-op.
func (c *TieredCache) scanDelete(ctx context.Context, match string) []string {
	if c.redis == nil {
		return nil
	}

	var removed []string
	iter := c.redis.Scan(ctx, 0, c.prefix+match, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			cacheErrors.WithLabelValues("invalidate").Inc()
			continue
		}
		removed = append(removed, strings.TrimPrefix(iter.Val(), c.prefix))
	}
	if err := iter.Err(); err != nil {
		cacheErrors.WithLabelValues("invalidate").Inc()
		c.logger.Warn().Err(err).Str("pattern", match).Msg("Redis keyspace scan failed")
	}

	return removed
}

// Stats returns current occupancy of the tiers.
func (c *TieredCache) Stats() Stats {
	return Stats{
		L1Size:     c.l1.len(),
		L1Capacity: c.l1.capacity,
		L2Enabled:  c.redis != nil,
	}
}

// Get retrieves and deserializes the value for key into T. The cache
// stores only serialized bytes; the expected shape is supplied by the
// call site.
func Get[T any](ctx context.Context, c *TieredCache, key string) (T, bool) {
	var value T

	raw, ok := c.GetRaw(ctx, key)
	if !ok {
		return value, false
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		c.Delete(ctx, key)
		return value, false
	}

	return value, true
}
