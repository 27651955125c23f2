package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/savoria-app/order-api/pkg/api"
	"github.com/savoria-app/order-api/pkg/breaker"
	"github.com/savoria-app/order-api/pkg/cache"
	"github.com/savoria-app/order-api/pkg/logging"
	"github.com/savoria-app/order-api/pkg/store"
)

func main() {
	// Configuration from environment
	port := getEnv("PORT", "8080")
	redisURL := getEnv("REDIS_URL", "")
	logLevel := getEnv("LOG_LEVEL", "info")
	logPretty := getEnvBool("LOG_PRETTY", false)
	l1Capacity := getEnvInt("CACHE_L1_CAPACITY", 1000)
	trustProxy := getEnvBool("TRUST_PROXY", false)
	storeRPS := getEnvInt("STORE_MAX_RPS", 0)

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(logLevel),
		Pretty: logPretty,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The remote cache tier is optional. Without REDIS_URL the cache
	// runs memory-only; with an unreachable Redis it degrades the same
	// way at runtime.
	var redisClient *redis.Client
	if redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", redisURL).Msg("Redis unreachable, continuing memory-only")
			redisClient = nil
		} else {
			logger.Info().Str("addr", redisURL).Msg("Connected to Redis")
		}
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.L1Capacity = l1Capacity
	cacheCfg.Redis = redisClient
	tiered := cache.New(cacheCfg)

	var pace *rate.Limiter
	if storeRPS > 0 {
		pace = rate.NewLimiter(rate.Limit(storeRPS), storeRPS)
	}
	docs := store.NewGuarded(store.NewMemory(), breaker.New("document-store", breaker.DefaultConfig()), pace)

	srvCfg := api.DefaultConfig()
	srvCfg.TrustProxy = trustProxy
	server := api.NewServer(docs, tiered, srvCfg)
	defer server.Close()

	if err := api.Warm(ctx, docs, tiered, api.DefaultWarmupConfig()); err != nil {
		logger.Warn().Err(err).Msg("Cache warmup failed")
	}

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown did not complete cleanly")
		}
	}()

	logger.Info().Str("addr", httpServer.Addr).Msg("Order API listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
