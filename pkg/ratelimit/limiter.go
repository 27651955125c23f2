// Package ratelimit implements fixed-window request rate limiting for
// the order API.
//
// Each limiter key (client IP, authenticated user, or endpoint+IP) owns
// a window with a counter and an absolute reset time. The window rolls
// over lazily: when a request arrives at or after the reset time, the
// counter restarts and the reset time advances by one window. This is a
// fixed-window limiter, not sliding-window or token-bucket; bursts that
// straddle a window boundary can briefly exceed the nominal rate. That
// is a documented limitation, traded for O(1) state per key.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/savoria-app/order-api/pkg/logging"
)

// timeNow is overridable in tests to simulate clock advancement.
var timeNow = time.Now

// Config holds limiter configuration.
type Config struct {
	// MaxRequests is the number of requests allowed per window.
	MaxRequests int

	// Window is the fixed window length.
	Window time.Duration

	// SweepInterval is how often expired windows are garbage-collected.
	// Zero disables the sweeper (callers may run Sweep themselves).
	SweepInterval time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRequests:   100,
		Window:        time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// Decision is the outcome of a single Allow call, carrying the advisory
// values reported to the client.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int

	// Reset is the time until the key's window resets.
	Reset time.Duration

	// RetryAfter is how long a rejected caller should wait. Zero when
	// the request was allowed.
	RetryAfter time.Duration
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter maintains one fixed window per key. The window map is shared
// by all concurrent request handlers; the roll-over check, increment
// and threshold comparison form one critical section so interleaved
// requests for the same key cannot observe a torn window.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	cfg     Config
	logger  zerolog.Logger
}

// New creates a fixed-window limiter.
func New(cfg Config) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultConfig().MaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}

	return &Limiter{
		windows: make(map[string]*window),
		cfg:     cfg,
		logger:  logging.NewLogger("rate-limiter"),
	}
}

// Allow records one request for key and decides whether it is within
// the window's budget.
func (l *Limiter) Allow(key string) Decision {
	now := timeNow()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &window{resetAt: now.Add(l.cfg.Window)}
		l.windows[key] = w
	} else if !now.Before(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(l.cfg.Window)
	}

	w.count++

	remaining := l.cfg.MaxRequests - w.count
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   w.count <= l.cfg.MaxRequests,
		Limit:     l.cfg.MaxRequests,
		Remaining: remaining,
		Reset:     w.resetAt.Sub(now),
	}
	if !d.Allowed {
		d.RetryAfter = d.Reset
		limiterRejected.Inc()
	} else {
		limiterAllowed.Inc()
	}

	return d
}

// Sweep removes windows whose reset time has passed, bounding the map
// to keys seen within the current window.
func (l *Limiter) Sweep() int {
	now := timeNow()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}

	limiterWindows.Set(float64(len(l.windows)))
	return removed
}

// StartSweeper runs Sweep periodically until the done channel closes.
func (l *Limiter) StartSweeper(done <-chan struct{}) {
	if l.cfg.SweepInterval <= 0 {
		return
	}

	ticker := time.NewTicker(l.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if removed := l.Sweep(); removed > 0 {
					l.logger.Debug().Int("removed", removed).Msg("Swept expired rate limit windows")
				}
			}
		}
	}()
}

// size returns the current number of tracked windows.
func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
