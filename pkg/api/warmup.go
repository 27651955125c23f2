package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/savoria-app/order-api/pkg/cache"
	"github.com/savoria-app/order-api/pkg/logging"
	"github.com/savoria-app/order-api/pkg/store"
)

// WarmupConfig controls the startup cache preload.
type WarmupConfig struct {
	// Pages is how many leading product pages to preload.
	Pages int
	// PageSize must match the listing default so warmed keys are the
	// ones real requests compute.
	PageSize int
	// Concurrency bounds parallel store queries.
	Concurrency int
	// TTL for warmed entries.
	TTL time.Duration
	// RetryDelay is the base pause before the single retry of a
	// failed page fetch.
	RetryDelay time.Duration
}

// DefaultWarmupConfig returns the standard warmup settings.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Pages:       3,
		PageSize:    20,
		Concurrency: 4,
		TTL:         5 * time.Minute,
		RetryDelay:  100 * time.Millisecond,
	}
}

// Warm preloads the hot product listings into the cache so the first
// requests after startup do not all miss at once. Each page fetch is
// retried once after a jittered pause; a page that still fails is
// logged and skipped, since warming is best effort.
func Warm(ctx context.Context, s store.DocumentStore, c *cache.TieredCache, cfg WarmupConfig) error {
	if cfg.Pages <= 0 {
		cfg.Pages = DefaultWarmupConfig().Pages
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultWarmupConfig().PageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultWarmupConfig().Concurrency
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultWarmupConfig().TTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultWarmupConfig().RetryDelay
	}

	logger := logging.NewLogger("warmup")
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)

	for page := 1; page <= cfg.Pages; page++ {
		g.Go(func() error {
			key := cache.PageKey("products", "all", page, cfg.PageSize)
			q := store.Query{
				OrderBy: "name",
				Limit:   cfg.PageSize,
				Offset:  (page - 1) * cfg.PageSize,
			}
			items, err := fetchOnceRetried(ctx, cfg.RetryDelay, func() ([]json.RawMessage, error) {
				return s.Query(ctx, "products", q)
			})
			if err != nil {
				logger.Warn().Err(err).Int("page", page).Msg("Warmup page skipped")
				return nil
			}
			c.Set(ctx, key, listResponse{Items: nonNil(items), Page: page, Limit: cfg.PageSize}, cfg.TTL)
			return nil
		})
	}

	g.Go(func() error {
		items, err := fetchOnceRetried(ctx, cfg.RetryDelay, func() ([]json.RawMessage, error) {
			return s.Query(ctx, "products", store.Query{
				Filters: []store.Filter{{Field: "popular", Op: "==", Value: true}},
				OrderBy: "name",
			})
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Warmup of popular products skipped")
			return nil
		}
		c.Set(ctx, cache.Key("products", "popular"), listResponse{Items: nonNil(items), Page: 1, Limit: len(items)}, cfg.TTL)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("cache warmup: %w", err)
	}

	logger.Info().
		Int("pages", cfg.Pages).
		Dur("elapsed", time.Since(start)).
		Msg("Cache warmup complete")
	return nil
}

// fetchOnceRetried runs fn and, on failure, retries exactly once after
// delay with ±20% jitter against synchronized retries.
func fetchOnceRetried(ctx context.Context, delay time.Duration, fn func() ([]json.RawMessage, error)) ([]json.RawMessage, error) {
	items, err := fn()
	if err == nil {
		return items, nil
	}

	jittered := time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4))
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(jittered):
	}
	return fn()
}
