// Package perf records per-route request durations and outcomes.
// The recorder is a passive observer: it never alters control flow.
package perf

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "savoria_request_duration_seconds",
		Help:    "Request duration in seconds by route",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"route"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savoria_requests_total",
		Help: "Total requests by route and status",
	}, []string{"route", "status"})
)

// RouteStats is the aggregate for one route.
type RouteStats struct {
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"-"`
	MaxDuration   time.Duration `json:"-"`

	AvgMillis float64 `json:"avg_ms"`
	MaxMillis float64 `json:"max_ms"`
}

// Recorder aggregates request outcomes per route.
type Recorder struct {
	mu        sync.Mutex
	routes    map[string]*RouteStats
	normalize func(r *http.Request) string
}

// New creates a recorder. normalize maps a request to its route label;
// it should collapse path parameters so cardinality stays bounded. A
// nil normalize uses the raw request path.
func New(normalize func(r *http.Request) string) *Recorder {
	if normalize == nil {
		normalize = func(r *http.Request) string { return r.URL.Path }
	}
	return &Recorder{
		routes:    make(map[string]*RouteStats),
		normalize: normalize,
	}
}

// Middleware measures every request flowing through next.
func (rec *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := rec.normalize(r)
		elapsed := time.Since(start)

		requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		requestsTotal.WithLabelValues(route, fmt.Sprint(sw.status)).Inc()

		rec.record(route, elapsed, sw.status >= 500)
	})
}

func (rec *Recorder) record(route string, elapsed time.Duration, isError bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	stats, ok := rec.routes[route]
	if !ok {
		stats = &RouteStats{}
		rec.routes[route] = stats
	}

	stats.Count++
	if isError {
		stats.Errors++
	}
	stats.TotalDuration += elapsed
	if elapsed > stats.MaxDuration {
		stats.MaxDuration = elapsed
	}
}

// Snapshot returns a copy of the per-route aggregates.
func (rec *Recorder) Snapshot() map[string]RouteStats {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	out := make(map[string]RouteStats, len(rec.routes))
	for route, stats := range rec.routes {
		s := *stats
		if s.Count > 0 {
			s.AvgMillis = float64(s.TotalDuration.Milliseconds()) / float64(s.Count)
		}
		s.MaxMillis = float64(s.MaxDuration.Milliseconds())
		out[route] = s
	}
	return out
}

// Handler serves the snapshot as JSON, for ad hoc inspection.
func (rec *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rec.Snapshot())
	})
}

// statusWriter passes writes through while remembering the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (s *statusWriter) WriteHeader(status int) {
	if !s.wrote {
		s.wrote = true
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if !s.wrote {
		s.wrote = true
	}
	return s.ResponseWriter.Write(b)
}
