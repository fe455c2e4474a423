package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	panicsRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_panics_recovered_total",
			Help: "Total number of panics recovered by the middleware chain",
		},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "Total number of requests rejected by rate limiting",
		},
	)
)

func recordPanicRecovered() {
	panicsRecoveredTotal.Inc()
}

func recordRateLimited() {
	rateLimitedTotal.Inc()
}
