package coalesce

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// coalesceLeaders counts requests that invoked the handler.
	coalesceLeaders = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "savoria_coalesce_leaders_total",
			Help: "Total coalesced requests that executed the handler",
		},
	)

	// coalesceFollowers counts requests answered from a leader's outcome.
	coalesceFollowers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "savoria_coalesce_followers_total",
			Help: "Total requests answered by joining an in-flight leader",
		},
	)

	// coalesceTimeouts counts leaders that exceeded the timeout.
	coalesceTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "savoria_coalesce_timeouts_total",
			Help: "Total coalesced leaders that timed out",
		},
	)

	// coalesceInflight reports pending coalesced requests.
	coalesceInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "savoria_coalesce_inflight",
			Help: "Number of coalesced requests currently in flight",
		},
	)
)
