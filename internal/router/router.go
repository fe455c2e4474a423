package router

import (
	"net/http"
	"time"

	"github.com/dkovalev/taskgw/internal/backend"
	"github.com/dkovalev/taskgw/internal/circuitbreaker"
	"github.com/dkovalev/taskgw/internal/observability"
	"github.com/dkovalev/taskgw/internal/proxy"
	"github.com/dkovalev/taskgw/internal/util"
)

// Router is the top-level request dispatcher.
type Router struct {
	matcher  *Matcher
	breakers *circuitbreaker.Registry
	proxy    *proxy.Proxy
	service  string
	logger   observability.Logger
}

// Option is a functional option for configuring the router.
type Option func(*Router)

// WithRouterLogger sets the logger for the router.
func WithRouterLogger(logger observability.Logger) Option {
	return func(rt *Router) {
		rt.logger = logger
	}
}

// New creates a router over the given matcher, breaker registry, and proxy.
func New(matcher *Matcher, breakers *circuitbreaker.Registry, p *proxy.Proxy, service string, opts ...Option) *Router {
	rt := &Router{
		matcher:  matcher,
		breakers: breakers,
		proxy:    p,
		service:  service,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(rt)
	}

	return rt
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := rt.matcher.Match(r.URL.Path)
	if target == nil {
		rt.handleNotFound(w, r)
		return
	}

	r = r.WithContext(util.ContextWithBackend(r.Context(), target.Name))

	cb := rt.breakers.GetOrCreate(target.Name)
	if !cb.Allow() {
		rt.handleBreakerOpen(w, r, target)
		return
	}

	outcome := rt.forward(w, r, target)

	cb.RecordOutcome(!outcome.BackendFailure())

	recordRouted(target.Name, outcome)

	if outcome.Kind != proxy.ErrorKindNone && !outcome.ResponseWritten() {
		rt.writeOutcomeError(w, r, outcome)
	}
}

// forward delegates to the proxy, converting a panic during forwarding
// into an unknown-error outcome instead of letting it escape.
func (rt *Router) forward(w http.ResponseWriter, r *http.Request, target *backend.Target) (outcome proxy.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			rt.logger.WithContext(r.Context()).Error("panic while forwarding",
				observability.String("backend", target.Name),
				observability.Any("panic", rec),
			)
			outcome = proxy.Outcome{Kind: proxy.ErrorKindUnknown}
		}
	}()

	return rt.proxy.Forward(w, r, target)
}

// handleNotFound renders the 404 response with the available prefixes.
func (rt *Router) handleNotFound(w http.ResponseWriter, r *http.Request) {
	recordNotFound()

	rt.logger.WithContext(r.Context()).Debug("no route for path",
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
	)

	util.WriteError(w, http.StatusNotFound, util.ErrorResponse{
		Error:             "no route for path " + r.URL.Path,
		Service:           rt.service,
		Timestamp:         time.Now().UTC(),
		CorrelationID:     util.CorrelationIDFromContext(r.Context()),
		AvailablePrefixes: rt.matcher.Prefixes(),
	})
}

// handleBreakerOpen renders the fast-fail 503 without any network call.
func (rt *Router) handleBreakerOpen(w http.ResponseWriter, r *http.Request, target *backend.Target) {
	rt.logger.WithContext(r.Context()).Warn("request rejected, circuit open",
		observability.String("backend", target.Name),
		observability.String("path", r.URL.Path),
	)

	util.WriteError(w, http.StatusServiceUnavailable, util.ErrorResponse{
		Error:               proxy.ErrorKindBreakerOpen.Message(),
		Service:             rt.service,
		Timestamp:           time.Now().UTC(),
		CorrelationID:       util.CorrelationIDFromContext(r.Context()),
		CircuitBreakerState: circuitbreaker.StateOpen.String(),
	})
}

// writeOutcomeError maps a failed forwarding outcome to its client-facing
// error response.
func (rt *Router) writeOutcomeError(w http.ResponseWriter, r *http.Request, outcome proxy.Outcome) {
	util.WriteError(w, outcome.Kind.HTTPStatus(), util.ErrorResponse{
		Error:         outcome.Kind.Message(),
		Service:       rt.service,
		Timestamp:     time.Now().UTC(),
		CorrelationID: util.CorrelationIDFromContext(r.Context()),
	})
}
