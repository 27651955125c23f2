package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/savoria-app/order-api/pkg/cache"
	"github.com/savoria-app/order-api/pkg/coalesce"
	"github.com/savoria-app/order-api/pkg/httpcache"
	"github.com/savoria-app/order-api/pkg/logging"
	"github.com/savoria-app/order-api/pkg/perf"
	"github.com/savoria-app/order-api/pkg/ratelimit"
	"github.com/savoria-app/order-api/pkg/store"
)

// Config assembles the per-component configurations for the server.
type Config struct {
	RateLimit  ratelimit.Config
	Coalesce   coalesce.Config
	TTL        TTLConfig
	TrustProxy bool
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		RateLimit: ratelimit.DefaultConfig(),
		Coalesce:  coalesce.DefaultConfig(),
		TTL:       DefaultTTLConfig(),
	}
}

// Server wires the handlers behind the request-serving chain:
// recording, rate limiting, conditional-request annotation, then
// request coalescing, innermost the routes. Operational endpoints
// (/health, /metrics, /stats) bypass the chain.
type Server struct {
	handler  http.Handler
	limiter  *ratelimit.Limiter
	recorder *perf.Recorder
	cache    *cache.TieredCache
	logger   zerolog.Logger
	done     chan struct{}
}

// NewServer builds the complete HTTP handler for the given store and
// cache.
func NewServer(s store.DocumentStore, c *cache.TieredCache, cfg Config) *Server {
	h := NewHandlers(s, c, cfg.TTL)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/products", h.listProducts)
	apiMux.HandleFunc("GET /api/products/popular", h.popularProducts)
	apiMux.HandleFunc("GET /api/products/{id}", h.getProduct)
	apiMux.HandleFunc("POST /api/products", h.createProduct)
	apiMux.HandleFunc("PUT /api/products/{id}", h.updateProduct)
	apiMux.HandleFunc("DELETE /api/products/{id}", h.deleteProduct)

	apiMux.HandleFunc("GET /api/orders", h.listOrders)
	apiMux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	apiMux.HandleFunc("POST /api/orders", h.createOrder)
	apiMux.HandleFunc("PATCH /api/orders/{id}/status", h.updateOrderStatus)

	apiMux.HandleFunc("GET /api/reservations", h.listReservations)
	apiMux.HandleFunc("POST /api/reservations", h.createReservation)
	apiMux.HandleFunc("DELETE /api/reservations/{id}", h.cancelReservation)

	recorder := perf.New(normalizeRoute)
	limiter := ratelimit.New(cfg.RateLimit)
	coalescer := coalesce.New(cfg.Coalesce)

	chained := http.Handler(apiMux)
	chained = coalescer.Middleware(chained)
	chained = httpcache.Middleware(cachePolicies())(chained)
	chained = ratelimit.Middleware(limiter, ratelimit.PerIP(cfg.TrustProxy))(chained)
	chained = recorder.Middleware(chained)

	srv := &Server{
		handler:  nil,
		limiter:  limiter,
		recorder: recorder,
		cache:    c,
		logger:   logging.NewLogger("server"),
		done:     make(chan struct{}),
	}

	root := http.NewServeMux()
	root.Handle("/api/", chained)
	root.HandleFunc("GET /health", srv.health)
	root.Handle("GET /metrics", promhttp.Handler())
	root.HandleFunc("GET /stats", srv.stats)
	srv.handler = root

	limiter.StartSweeper(srv.done)
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	close(s.done)
	s.logger.Debug().Msg("Server background tasks stopped")
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// stats reports cache counters and per-route timings.
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cache":  s.cache.Stats(),
		"routes": s.recorder.Snapshot(),
	})
}

// cachePolicies declares the Cache-Control annotations per route
// shape. First match wins, so the literal popular route precedes the
// [id] wildcard.
func cachePolicies() *httpcache.PolicyTable {
	return httpcache.NewPolicyTable().
		Add("/api/products/popular", httpcache.Policy{MaxAge: 10 * time.Minute, Public: true, StaleWhileRevalidate: 2 * time.Minute}).
		Add("/api/products/[id]", httpcache.Policy{MaxAge: 5 * time.Minute, Public: true, StaleWhileRevalidate: time.Minute}).
		Add("/api/products", httpcache.Policy{MaxAge: 5 * time.Minute, Public: true, StaleWhileRevalidate: time.Minute}).
		Add("/api/reservations", httpcache.Policy{MaxAge: 30 * time.Second})
}

// normalizeRoute collapses document ids so per-route metrics stay
// bounded. "/api/orders/8f3a.../status" becomes "/api/orders/:id/status".
func normalizeRoute(r *http.Request) string {
	segs := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(segs) < 3 || segs[0] != "api" {
		return r.URL.Path
	}
	if segs[2] == "popular" {
		return r.URL.Path
	}
	segs[2] = ":id"
	return "/" + strings.Join(segs, "/")
}
