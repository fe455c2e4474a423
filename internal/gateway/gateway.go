// Package gateway wires the routing core, middleware chain, and
// operational endpoints into a runnable HTTP service.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dkovalev/taskgw/internal/backend"
	"github.com/dkovalev/taskgw/internal/circuitbreaker"
	"github.com/dkovalev/taskgw/internal/config"
	"github.com/dkovalev/taskgw/internal/health"
	"github.com/dkovalev/taskgw/internal/middleware"
	"github.com/dkovalev/taskgw/internal/observability"
	"github.com/dkovalev/taskgw/internal/proxy"
	"github.com/dkovalev/taskgw/internal/router"
	"github.com/dkovalev/taskgw/internal/util"
)

// Gateway owns the routing core and its HTTP listener. The circuit breaker
// registry is constructed once here and shared by reference with the
// router and the health prober; there is no ambient global breaker state.
type Gateway struct {
	cfg      *config.Config
	logger   observability.Logger
	zap      *zap.Logger
	breakers *circuitbreaker.Registry
	matcher  *router.Matcher
	router   *router.Router
	prober   *health.Prober
	limiter  *middleware.RateLimiter
	listener *Listener
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithGatewayLogger sets the structured logger.
func WithGatewayLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithZapLogger sets the raw zap logger handed to the breaker registry.
func WithZapLogger(l *zap.Logger) Option {
	return func(g *Gateway) {
		g.zap = l
	}
}

// New builds a gateway from validated configuration.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		cfg:    cfg,
		logger: observability.NopLogger(),
		zap:    zap.NewNop(),
	}

	for _, opt := range opts {
		opt(g)
	}

	targets, err := backend.BuildTargets(cfg.Backends)
	if err != nil {
		return nil, fmt.Errorf("failed to build backend targets: %w", err)
	}

	breakerCfg := &circuitbreaker.Config{
		Window:       cfg.CircuitBreaker.Window.Duration(),
		Buckets:      cfg.CircuitBreaker.Buckets,
		FailureRatio: cfg.CircuitBreaker.FailureRatio,
		MinRequests:  cfg.CircuitBreaker.MinRequests,
		ResetTimeout: cfg.CircuitBreaker.ResetTimeout.Duration(),
		CallTimeout:  cfg.CircuitBreaker.CallTimeout.Duration(),
	}
	g.breakers = circuitbreaker.NewRegistry(breakerCfg, g.zap)

	// Create every breaker up front so introspection shows all backends
	// from the first request on.
	for _, t := range targets {
		g.breakers.GetOrCreate(t.Name)
	}

	g.matcher = router.NewMatcher(targets)

	p := proxy.New(proxy.Config{
		Timeout:     cfg.Proxy.Timeout.Duration(),
		ServiceName: cfg.Gateway.ServiceName,
	}, proxy.WithLogger(g.logger))

	g.router = router.New(g.matcher, g.breakers, p, cfg.Gateway.ServiceName,
		router.WithRouterLogger(g.logger))

	g.prober = health.NewProber(health.Config{
		Path:          cfg.Health.Path,
		GatedTimeout:  cfg.CircuitBreaker.CallTimeout.Duration(),
		DirectTimeout: cfg.Health.DirectTimeout.Duration(),
	}, g.matcher.Targets, g.breakers,
		health.WithProberLogger(g.logger))

	listener, err := NewListener(cfg.Server, g.buildHandler(), WithListenerLogger(g.logger))
	if err != nil {
		return nil, err
	}
	g.listener = listener

	return g, nil
}

// buildHandler assembles the mux and wraps it in the middleware chain.
func (g *Gateway) buildHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.prober.Handler())
	mux.HandleFunc("/healthz", health.LivenessHandler())
	mux.HandleFunc("/api/circuit-breakers", g.circuitBreakersHandler)
	mux.HandleFunc("/api/proxy-info", g.proxyInfoHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", g.router)

	var handler http.Handler = mux

	if g.cfg.RateLimit.Enabled {
		g.limiter = middleware.NewRateLimiter(
			g.cfg.RateLimit.RPS,
			g.cfg.RateLimit.Burst,
			g.cfg.RateLimit.PerClient,
			middleware.WithRateLimiterLogger(g.logger),
		)
		handler = g.limiter.Middleware()(handler)
	}

	if g.cfg.CORS.Enabled {
		corsCfg := middleware.DefaultCORSConfig()
		if len(g.cfg.CORS.AllowedOrigins) > 0 {
			corsCfg.AllowOrigins = g.cfg.CORS.AllowedOrigins
		}
		if len(g.cfg.CORS.AllowedMethods) > 0 {
			corsCfg.AllowMethods = g.cfg.CORS.AllowedMethods
		}
		if len(g.cfg.CORS.AllowedHeaders) > 0 {
			corsCfg.AllowHeaders = g.cfg.CORS.AllowedHeaders
		}
		handler = middleware.CORS(corsCfg)(handler)
	}

	handler = middleware.Logging(g.logger)(handler)
	handler = middleware.Correlation()(handler)
	handler = middleware.Recovery(g.logger)(handler)

	return handler
}

// circuitBreakersHandler serves per-breaker introspection.
func (g *Gateway) circuitBreakersHandler(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service":         g.cfg.Gateway.ServiceName,
		"timestamp":       time.Now().UTC(),
		"circuitBreakers": g.breakers.Stats(),
	})
}

// proxyRoute is one row of the routing-table description.
type proxyRoute struct {
	Name          string `json:"name"`
	BaseURL       string `json:"baseURL"`
	PathPrefix    string `json:"pathPrefix"`
	RewritePrefix string `json:"rewritePrefix"`
}

// proxyInfoHandler serves the routing-table description.
func (g *Gateway) proxyInfoHandler(w http.ResponseWriter, r *http.Request) {
	targets := g.matcher.Targets()
	routes := make([]proxyRoute, len(targets))
	for i, t := range targets {
		routes[i] = proxyRoute{
			Name:          t.Name,
			BaseURL:       t.BaseURL.String(),
			PathPrefix:    t.PathPrefix,
			RewritePrefix: t.RewritePrefix,
		}
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service":   g.cfg.Gateway.ServiceName,
		"timestamp": time.Now().UTC(),
		"routes":    routes,
	})
}

// Reload applies a new configuration. Only the routing table is swapped;
// breaker tunables and listener settings keep their startup values until
// the next restart, and breakers keep their accumulated state so a reload
// cannot mask an unhealthy backend.
func (g *Gateway) Reload(cfg *config.Config) error {
	targets, err := backend.BuildTargets(cfg.Backends)
	if err != nil {
		return fmt.Errorf("failed to build backend targets: %w", err)
	}

	for _, t := range targets {
		g.breakers.GetOrCreate(t.Name)
	}
	g.matcher.Update(targets)

	g.logger.Info("routing table reloaded",
		observability.Int("backends", len(targets)),
	)

	return nil
}

// Start starts the HTTP listener.
func (g *Gateway) Start(ctx context.Context) error {
	return g.listener.Start(ctx)
}

// Shutdown gracefully stops the gateway.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.limiter != nil {
		g.limiter.Stop()
	}
	return g.listener.Shutdown(ctx)
}

// Addr returns the listener address.
func (g *Gateway) Addr() string {
	return g.listener.Address()
}
