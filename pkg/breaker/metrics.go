package breaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// breakerState reports the current state per dependency
	// (0 = closed, 1 = half-open, 2 = open).
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "savoria_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"dependency"},
	)

	// breakerTransitions counts state transitions by target state.
	breakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savoria_breaker_transitions_total",
			Help: "Total circuit breaker state transitions by target state",
		},
		[]string{"dependency", "to"},
	)

	// breakerRejections counts calls rejected without invoking the
	// guarded operation.
	breakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savoria_breaker_rejections_total",
			Help: "Total calls rejected while the circuit breaker was open",
		},
		[]string{"dependency"},
	)
)
