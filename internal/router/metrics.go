package router

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dkovalev/taskgw/internal/proxy"
)

var (
	routedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_router_requests_total",
			Help: "Total number of routed requests",
		},
		[]string{"backend", "code"},
	)

	notFoundTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_router_not_found_total",
			Help: "Total number of requests matching no configured prefix",
		},
	)
)

// recordRouted records the final status of one routed request.
func recordRouted(backendName string, outcome proxy.Outcome) {
	code := outcome.StatusCode
	if code == 0 {
		code = outcome.Kind.HTTPStatus()
	}
	routedTotal.WithLabelValues(backendName, strconv.Itoa(code)).Inc()
}

// recordNotFound records a request that matched no prefix.
func recordNotFound() {
	notFoundTotal.Inc()
}
