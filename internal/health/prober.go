// Package health probes backend health endpoints through their circuit
// breakers and aggregates the results for operational visibility.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dkovalev/taskgw/internal/backend"
	"github.com/dkovalev/taskgw/internal/circuitbreaker"
	"github.com/dkovalev/taskgw/internal/observability"
	"github.com/dkovalev/taskgw/internal/util"
)

// Status represents a health status.
type Status string

const (
	// StatusHealthy indicates the backend answered its health endpoint
	// with a 2xx.
	StatusHealthy Status = "healthy"

	// StatusUnhealthy indicates the backend did not.
	StatusUnhealthy Status = "unhealthy"

	// StatusDegraded indicates some, but not all, backends are healthy.
	StatusDegraded Status = "degraded"
)

// BackendHealth is the per-backend row of the aggregate health report.
type BackendHealth struct {
	Name                string `json:"name"`
	Status              Status `json:"status"`
	CircuitBreakerState string `json:"circuitBreakerState"`
	Error               string `json:"error,omitempty"`
}

// Report is the aggregate health report for all configured backends.
type Report struct {
	Status          Status                          `json:"status"`
	Timestamp       time.Time                       `json:"timestamp"`
	Services        []BackendHealth                 `json:"services"`
	CircuitBreakers map[string]circuitbreaker.Stats `json:"circuitBreakers"`
}

// Config holds prober tunables.
type Config struct {
	// Path is the health endpoint exposed by every backend.
	Path string

	// GatedTimeout bounds the breaker-gated health call.
	GatedTimeout time.Duration

	// DirectTimeout bounds the un-gated direct fallback call. It is
	// shorter: the direct call exists purely for accurate reporting.
	DirectTimeout time.Duration
}

// TargetsFunc returns the current backend targets; indirection keeps the
// prober correct across config hot reloads.
type TargetsFunc func() []*backend.Target

// Prober checks backend health through each backend's circuit breaker,
// with a direct un-gated fallback for accurate reporting.
type Prober struct {
	cfg      Config
	targets  TargetsFunc
	breakers *circuitbreaker.Registry
	client   *http.Client
	logger   observability.Logger
}

// ProberOption is a functional option for configuring the prober.
type ProberOption func(*Prober)

// WithProberLogger sets the logger for the prober.
func WithProberLogger(logger observability.Logger) ProberOption {
	return func(p *Prober) {
		p.logger = logger
	}
}

// WithProberClient sets the HTTP client used for health calls.
func WithProberClient(client *http.Client) ProberOption {
	return func(p *Prober) {
		p.client = client
	}
}

// NewProber creates a new health prober.
func NewProber(cfg Config, targets TargetsFunc, breakers *circuitbreaker.Registry, opts ...ProberOption) *Prober {
	p := &Prober{
		cfg:      cfg,
		targets:  targets,
		breakers: breakers,
		client:   &http.Client{},
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// CheckBackend checks one backend's health endpoint.
//
// When the breaker is not open, the call goes through the breaker and
// counts toward its statistics. If that call fails at the transport level
// (not merely a non-2xx), one direct un-gated retry with a shorter timeout
// produces the reported status; the retry never feeds breaker statistics,
// so health polling cannot inflate the failure rate independently of real
// traffic.
//
// When the breaker is open, the gated path is skipped entirely and the
// reported breaker state stays "open" regardless of the direct result.
func (p *Prober) CheckBackend(ctx context.Context, target *backend.Target) BackendHealth {
	cb := p.breakers.GetOrCreate(target.Name)

	if cb.State() == circuitbreaker.StateOpen {
		status, err := p.directProbe(ctx, target)
		return BackendHealth{
			Name:                target.Name,
			Status:              status,
			CircuitBreakerState: circuitbreaker.StateOpen.String(),
			Error:               errString(err),
		}
	}

	status, err := p.gatedProbe(ctx, cb, target)
	if err != nil {
		// Transport failure on the gated path; retry direct for an
		// accurate report.
		status, err = p.directProbe(ctx, target)
	}

	return BackendHealth{
		Name:                target.Name,
		Status:              status,
		CircuitBreakerState: cb.State().String(),
		Error:               errString(err),
	}
}

// gatedProbe performs the breaker-gated health call. Only transport errors
// return a non-nil error; a non-2xx response is an unhealthy status, not an
// error.
func (p *Prober) gatedProbe(ctx context.Context, cb *circuitbreaker.CircuitBreaker, target *backend.Target) (Status, error) {
	if !cb.Allow() {
		// The breaker opened between the state check and here.
		return StatusUnhealthy, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.GatedTimeout)
	defer cancel()

	code, err := p.probe(callCtx, target)
	if err != nil {
		cb.RecordFailure()
		return StatusUnhealthy, err
	}

	// Mirror the router's convention: only 5xx counts against the breaker.
	cb.RecordOutcome(code < 500)

	if code >= 200 && code < 300 {
		return StatusHealthy, nil
	}
	return StatusUnhealthy, nil
}

// directProbe performs the un-gated fallback call. It touches no breaker
// statistics and swallows its own error into the unhealthy status.
func (p *Prober) directProbe(ctx context.Context, target *backend.Target) (Status, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.DirectTimeout)
	defer cancel()

	code, err := p.probe(callCtx, target)
	if err != nil {
		return StatusUnhealthy, err
	}
	if code >= 200 && code < 300 {
		return StatusHealthy, nil
	}
	return StatusUnhealthy, nil
}

// probe issues one GET to the backend's health endpoint.
func (p *Prober) probe(ctx context.Context, target *backend.Target) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.HealthURL(p.cfg.Path), nil)
	if err != nil {
		return 0, err
	}
	if id := util.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(util.HeaderCorrelationID, id)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode, nil
}

// CheckAll checks every configured backend concurrently. The aggregate is
// healthy only when every backend is healthy; a failing or panicking check
// degrades that backend's row, never the whole report.
func (p *Prober) CheckAll(ctx context.Context) Report {
	targets := p.targets()
	results := make([]BackendHealth, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target *backend.Target) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					p.logger.Error("backend health check panicked",
						observability.String("backend", target.Name),
						observability.Any("panic", rec),
					)
					results[i] = BackendHealth{
						Name:                target.Name,
						Status:              StatusUnhealthy,
						CircuitBreakerState: p.breakers.GetOrCreate(target.Name).State().String(),
						Error:               fmt.Sprintf("health check panicked: %v", rec),
					}
				}
			}()
			results[i] = p.CheckBackend(ctx, target)
		}(i, target)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	overall := StatusHealthy
	for _, r := range results {
		if r.Status != StatusHealthy {
			overall = StatusDegraded
			break
		}
	}

	return Report{
		Status:          overall,
		Timestamp:       time.Now().UTC(),
		Services:        results,
		CircuitBreakers: p.breakers.Stats(),
	}
}

// errString renders an error for the report row.
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
