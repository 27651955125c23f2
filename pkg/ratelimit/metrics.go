package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// limiterAllowed counts requests that fit in their window.
	limiterAllowed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "savoria_ratelimit_allowed_total",
			Help: "Total requests allowed by the rate limiter",
		},
	)

	// limiterRejected counts requests over their window budget.
	limiterRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "savoria_ratelimit_rejected_total",
			Help: "Total requests rejected by the rate limiter",
		},
	)

	// limiterWindows reports tracked windows after each sweep.
	limiterWindows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "savoria_ratelimit_windows",
			Help: "Number of rate limit windows currently tracked",
		},
	)
)
