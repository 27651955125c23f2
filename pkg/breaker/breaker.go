// Package breaker implements a circuit breaker guarding calls to an
// unreliable downstream dependency.
//
// The breaker has three states. Closed passes calls through and counts
// consecutive failures; when failures reach the configured threshold the
// breaker opens and rejects calls immediately with ErrOpen, without
// invoking the operation. After the open timeout elapses the next call
// runs in half-open mode as a recovery probe: a failure reopens the
// breaker, while enough consecutive successes close it again. This stops
// a saturated or down dependency from being hammered by retries while
// still probing recovery automatically.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/savoria-app/order-api/pkg/logging"
)

// ErrOpen is returned when the breaker rejects a call without invoking
// the guarded operation.
var ErrOpen = errors.New("circuit breaker open")

// timeNow is overridable in tests to simulate clock advancement.
var timeNow = time.Now

// State identifies the breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes
	// that closes the breaker.
	SuccessThreshold int

	// Timeout is how long the breaker stays open before the next call
	// is attempted as a half-open probe.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// Breaker guards a single downstream dependency. One instance is shared
// by all concurrent request handlers; every state inspection and
// transition is a single critical section.
type Breaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	name   string
	cfg    Config
	logger zerolog.Logger
}

// New creates a circuit breaker named for the dependency it guards.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	b := &Breaker{
		state:  StateClosed,
		name:   name,
		cfg:    cfg,
		logger: logging.NewLogger("circuit-breaker").With().Str("dependency", name).Logger(),
	}
	breakerState.WithLabelValues(name).Set(stateValue(StateClosed))
	return b
}

// Do runs op under the breaker. When the breaker is open and the open
// timeout has not elapsed, op is not invoked and ErrOpen is returned.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		breakerRejections.WithLabelValues(b.name).Inc()
		return err
	}

	err := op(ctx)
	b.afterCall(err)
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// beforeCall decides whether the call may proceed, transitioning
// open -> half-open when the timeout has elapsed. The call that finds
// the timeout elapsed is itself the half-open probe.
func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	if timeNow().Sub(b.lastFailureTime) <= b.cfg.Timeout {
		return ErrOpen
	}

	b.transition(StateHalfOpen)
	b.successCount = 0
	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}
}

func (b *Breaker) onFailure() {
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.lastFailureTime = timeNow()
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// A single failed probe reopens the breaker.
		b.lastFailureTime = timeNow()
		b.transition(StateOpen)
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.failureCount = 0
			b.transition(StateClosed)
		}
	}
}

// transition must be called with the mutex held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}

	from := b.state
	b.state = to

	breakerState.WithLabelValues(b.name).Set(stateValue(to))
	breakerTransitions.WithLabelValues(b.name, string(to)).Inc()

	evt := b.logger.Info()
	if to == StateOpen {
		evt = b.logger.Warn()
	}
	evt.
		Str("from", string(from)).
		Str("state", string(to)).
		Int("failures", b.failureCount).
		Msg("Circuit breaker state changed")
}

func stateValue(s State) float64 {
	switch s {
	case StateClosed:
		return 0
	case StateHalfOpen:
		return 1
	default:
		return 2
	}
}
