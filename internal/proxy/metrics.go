package proxy

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	forwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_proxy_requests_total",
			Help: "Total number of forwarded requests",
		},
		[]string{"backend", "strategy", "code"},
	)

	forwardErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_proxy_errors_total",
			Help: "Total number of forwarding failures by error kind",
		},
		[]string{"backend", "strategy", "kind"},
	)

	forwardDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_proxy_request_duration_seconds",
			Help:    "Duration of forwarded requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "strategy"},
	)
)

// recordForward records metrics for one forwarding attempt.
func recordForward(backendName string, strategy Strategy, outcome Outcome) {
	code := "error"
	if outcome.StatusCode != 0 {
		code = strconv.Itoa(outcome.StatusCode)
	}
	forwardsTotal.WithLabelValues(backendName, strategy.String(), code).Inc()

	if outcome.Kind != ErrorKindNone {
		forwardErrorsTotal.WithLabelValues(backendName, strategy.String(), string(outcome.Kind)).Inc()
	}

	forwardDuration.WithLabelValues(backendName, strategy.String()).Observe(outcome.Duration.Seconds())
}
