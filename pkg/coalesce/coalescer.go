// Package coalesce implements request coalescing for idempotent HTTP
// requests.
//
// Under a load spike, many clients missing the same cold cache key
// would otherwise all invoke the route handler and hit the document
// store simultaneously. The coalescer collapses concurrent identical
// GET/HEAD requests into one: the first request for a key becomes the
// leader and runs the handler; every request for the same key arriving
// while the leader is in flight becomes a follower and is answered with
// the leader's exact status and body, without ever invoking the
// handler. At most one downstream resolution is in flight per distinct
// request shape, regardless of how many callers are waiting on it.
package coalesce

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/savoria-app/order-api/pkg/logging"
)

var (
	// ErrTimeout is the outcome delivered to followers when the leader
	// does not resolve within the configured timeout.
	ErrTimeout = errors.New("coalesced request timed out")

	// ErrLeaderAborted is the outcome delivered to followers when the
	// leader's handler panicked before producing a response.
	ErrLeaderAborted = errors.New("coalesced request aborted")
)

// Config holds coalescer configuration.
type Config struct {
	// Timeout bounds how long followers wait for the leader. A leader
	// that has not resolved by then fails all its followers.
	Timeout time.Duration

	// Grace bounds how long a resolved entry may linger in the map
	// before removal. Requests arriving after resolution never join
	// it; they elect a fresh leader.
	Grace time.Duration

	// IdentityHeader, when non-empty, scopes coalescing by the named
	// request header so one caller's response is never replayed to a
	// request carrying a different identity.
	IdentityHeader string
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		Grace:          50 * time.Millisecond,
		IdentityHeader: "X-User-ID",
	}
}

// pending is a single in-flight coalesced request. Its outcome fields
// are written exactly once (guarded by once) before done is closed.
type pending struct {
	done chan struct{}
	once sync.Once

	status int
	header http.Header
	body   []byte
	err    error
}

func (p *pending) resolve(status int, header http.Header, body []byte) {
	p.once.Do(func() {
		p.status = status
		p.header = header
		p.body = body
		close(p.done)
	})
}

func (p *pending) fail(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// settled reports whether the outcome has been written. A settled
// entry accepts no new followers.
func (p *pending) settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Coalescer deduplicates concurrent identical idempotent requests.
// The pending map is shared by all request handlers; lookup-or-insert
// is a single critical section so two leaders can never coexist for
// one key.
type Coalescer struct {
	mu      sync.Mutex
	pending map[string]*pending
	cfg     Config
	logger  zerolog.Logger
}

// New creates a request coalescer.
func New(cfg Config) *Coalescer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultConfig().Grace
	}

	return &Coalescer{
		pending: make(map[string]*pending),
		cfg:     cfg,
		logger:  logging.NewLogger("coalescer"),
	}
}

// requestKey canonicalizes the request shape. url.Values.Encode sorts
// parameter names, so query order never splits a key. The caller's
// identity participates in the key so responses stay scoped to the
// identity they were produced for.
func requestKey(r *http.Request, identityHeader string) string {
	key := r.Method + " " + r.URL.Path + "?" + r.URL.Query().Encode()
	if identityHeader != "" {
		key += "\n" + r.Header.Get(identityHeader)
	}
	return key
}

// Middleware wraps next with coalescing for GET and HEAD requests.
// Requests with side effects pass through untouched. A request only
// joins an entry whose outcome is still pending; an entry that has
// already resolved is replaced by a fresh leader, so a read issued
// after a write can never be answered with the pre-write response.
func (c *Coalescer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		key := requestKey(r, c.cfg.IdentityHeader)

		c.mu.Lock()
		if p, ok := c.pending[key]; ok && !p.settled() {
			c.mu.Unlock()
			c.follow(w, r, key, p)
			return
		}

		p := &pending{done: make(chan struct{})}
		c.pending[key] = p
		c.mu.Unlock()

		c.lead(w, r, key, p, next)
	})
}

// lead runs the handler as the leader for key, then fans the captured
// outcome out to all registered followers.
func (c *Coalescer) lead(w http.ResponseWriter, r *http.Request, key string, p *pending, next http.Handler) {
	coalesceLeaders.Inc()
	inflight := c.inflightCount()
	coalesceInflight.Set(float64(inflight))

	// If the handler hangs past the timeout, fail the followers and
	// free the key so a fresh leader can be elected.
	timeout := time.AfterFunc(c.cfg.Timeout, func() {
		coalesceTimeouts.Inc()
		c.logger.Warn().Str("key", key).Dur("timeout", c.cfg.Timeout).Msg("Coalesced leader timed out")
		p.fail(ErrTimeout)
		c.remove(key, p)
	})
	defer timeout.Stop()

	defer func() {
		if rec := recover(); rec != nil {
			p.fail(ErrLeaderAborted)
			c.remove(key, p)
			panic(rec)
		}
	}()

	recorder := newRecorder()
	next.ServeHTTP(recorder, r)

	p.resolve(recorder.status, recorder.header, recorder.body.Bytes())

	// The resolved entry accepts no more followers; the grace window
	// just bounds how long it lingers before removal while any
	// already-joined followers drain.
	time.AfterFunc(c.cfg.Grace, func() {
		c.remove(key, p)
	})

	writeOutcome(w, p)
}

// follow waits for the leader's outcome and replays it.
func (c *Coalescer) follow(w http.ResponseWriter, r *http.Request, key string, p *pending) {
	coalesceFollowers.Inc()
	c.logger.Debug().Str("key", key).Msg("Joined in-flight request as follower")

	select {
	case <-p.done:
		writeOutcome(w, p)
	case <-r.Context().Done():
		// Client went away; nothing sensible left to write.
	}
}

// remove drops the pending entry for key, but only if it still refers
// to this resolution (a new leader may have replaced it already).
func (c *Coalescer) remove(key string, p *pending) {
	c.mu.Lock()
	if cur, ok := c.pending[key]; ok && cur == p {
		delete(c.pending, key)
	}
	n := len(c.pending)
	c.mu.Unlock()

	coalesceInflight.Set(float64(n))
}

func (c *Coalescer) inflightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// writeOutcome writes a resolved pending entry's outcome, error or not,
// to a response writer. Every caller of the same resolution receives an
// identical (status, body) pair.
func writeOutcome(w http.ResponseWriter, p *pending) {
	if p.err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": p.err.Error(),
		})
		return
	}

	for name, values := range p.header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(p.status)
	_, _ = w.Write(p.body)
}

// recorder buffers a handler's response so it can be delivered to the
// leader and replayed to every follower.
type recorder struct {
	status int
	header http.Header
	body   bytes.Buffer
	wrote  bool
}

func newRecorder() *recorder {
	return &recorder{
		status: http.StatusOK,
		header: make(http.Header),
	}
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(status int) {
	if r.wrote {
		return
	}
	r.wrote = true
	r.status = status
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(b)
}
