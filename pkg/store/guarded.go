package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/savoria-app/order-api/pkg/breaker"
	"github.com/savoria-app/order-api/pkg/logging"
)

var (
	storeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savoria_store_calls_total",
		Help: "Total document store calls by operation and outcome",
	}, []string{"operation", "outcome"})

	storeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "savoria_store_call_duration_seconds",
		Help:    "Document store call duration in seconds by operation",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation"})
)

// Guarded decorates a DocumentStore with failure isolation: every call
// runs under the circuit breaker, and an optional token-bucket pacer
// smooths the call rate against the backing service. ErrNotFound is an
// absent result, not a downstream failure, so it never trips the
// breaker.
type Guarded struct {
	inner   DocumentStore
	breaker *breaker.Breaker
	pace    *rate.Limiter
	logger  zerolog.Logger
}

// NewGuarded wraps inner with the given breaker. pace may be nil to
// disable downstream pacing.
func NewGuarded(inner DocumentStore, b *breaker.Breaker, pace *rate.Limiter) *Guarded {
	return &Guarded{
		inner:   inner,
		breaker: b,
		pace:    pace,
		logger:  logging.NewLogger("document-store"),
	}
}

func (g *Guarded) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var doc json.RawMessage
	err := g.do(ctx, "get", func(ctx context.Context) error {
		var err error
		doc, err = g.inner.Get(ctx, collection, id)
		return err
	})
	return doc, err
}

func (g *Guarded) Query(ctx context.Context, collection string, q Query) ([]json.RawMessage, error) {
	var docs []json.RawMessage
	err := g.do(ctx, "query", func(ctx context.Context) error {
		var err error
		docs, err = g.inner.Query(ctx, collection, q)
		return err
	})
	return docs, err
}

func (g *Guarded) Add(ctx context.Context, collection string, doc json.RawMessage) (string, error) {
	var id string
	err := g.do(ctx, "add", func(ctx context.Context) error {
		var err error
		id, err = g.inner.Add(ctx, collection, doc)
		return err
	})
	return id, err
}

func (g *Guarded) Update(ctx context.Context, collection, id string, doc json.RawMessage) error {
	return g.do(ctx, "update", func(ctx context.Context) error {
		return g.inner.Update(ctx, collection, id, doc)
	})
}

func (g *Guarded) Delete(ctx context.Context, collection, id string) error {
	return g.do(ctx, "delete", func(ctx context.Context) error {
		return g.inner.Delete(ctx, collection, id)
	})
}

func (g *Guarded) Batch(ctx context.Context, ops []BatchOp) error {
	return g.do(ctx, "batch", func(ctx context.Context) error {
		return g.inner.Batch(ctx, ops)
	})
}

func (g *Guarded) do(ctx context.Context, op string, fn func(context.Context) error) error {
	if g.pace != nil {
		if err := g.pace.Wait(ctx); err != nil {
			storeCalls.WithLabelValues(op, "cancelled").Inc()
			return err
		}
	}

	start := time.Now()
	var callErr error

	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		callErr = fn(ctx)
		if errors.Is(callErr, ErrNotFound) {
			// Absent documents are a healthy outcome.
			return nil
		}
		return callErr
	})

	storeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, breaker.ErrOpen):
		storeCalls.WithLabelValues(op, "rejected").Inc()
		return err
	case errors.Is(callErr, ErrNotFound):
		storeCalls.WithLabelValues(op, "not_found").Inc()
		return callErr
	case err != nil:
		storeCalls.WithLabelValues(op, "error").Inc()
		g.logger.Error().Err(err).Str("operation", op).Msg("Document store call failed")
		return err
	default:
		storeCalls.WithLabelValues(op, "ok").Inc()
		return nil
	}
}
