package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dkovalev/taskgw/internal/backend"
	"github.com/dkovalev/taskgw/internal/circuitbreaker"
)

func proberConfig() Config {
	return Config{
		Path:          "/health",
		GatedTimeout:  time.Second,
		DirectTimeout: time.Second,
	}
}

func targetFor(t *testing.T, name, baseURL string) *backend.Target {
	t.Helper()
	u, err := url.Parse(baseURL)
	require.NoError(t, err)
	return &backend.Target{Name: name, BaseURL: u, PathPrefix: "/api/" + name, RewritePrefix: "/" + name}
}

func staticTargets(targets ...*backend.Target) TargetsFunc {
	return func() []*backend.Target { return targets }
}

func newRegistry() *circuitbreaker.Registry {
	cfg := circuitbreaker.DefaultConfig().WithMinRequests(2).WithFailureRatio(0.5)
	return circuitbreaker.NewRegistry(cfg, zap.NewNop())
}

func TestProber_HealthyBackendFeedsBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := targetFor(t, "tasks", srv.URL)
	reg := newRegistry()
	p := NewProber(proberConfig(), staticTargets(target), reg)

	row := p.CheckBackend(context.Background(), target)

	assert.Equal(t, StatusHealthy, row.Status)
	assert.Equal(t, "closed", row.CircuitBreakerState)
	assert.Empty(t, row.Error)

	// The gated call counts toward breaker statistics.
	stats := reg.Get("tasks").Stats()
	assert.Equal(t, 1, stats.Successes)
}

func TestProber_Non2xxIsUnhealthyAndCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	target := targetFor(t, "tasks", srv.URL)
	reg := newRegistry()
	p := NewProber(proberConfig(), staticTargets(target), reg)

	row := p.CheckBackend(context.Background(), target)

	assert.Equal(t, StatusUnhealthy, row.Status)
	assert.Empty(t, row.Error)
	assert.Equal(t, 1, reg.Get("tasks").Stats().Failures)
}

func TestProber_Non5xxErrorStatusCountsAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	target := targetFor(t, "tasks", srv.URL)
	reg := newRegistry()
	p := NewProber(proberConfig(), staticTargets(target), reg)

	row := p.CheckBackend(context.Background(), target)

	// A 401 means the backend is up but the probe is unauthorized: report
	// unhealthy, but do not count it against the breaker.
	assert.Equal(t, StatusUnhealthy, row.Status)
	stats := reg.Get("tasks").Stats()
	assert.Equal(t, 1, stats.Successes)
	assert.Equal(t, 0, stats.Failures)
}

func TestProber_DirectRetryDoesNotFeedBreaker(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	deadURL := srv.URL
	srv.Close()

	target := targetFor(t, "tasks", deadURL)
	reg := newRegistry()
	p := NewProber(proberConfig(), staticTargets(target), reg)

	row := p.CheckBackend(context.Background(), target)

	assert.Equal(t, StatusUnhealthy, row.Status)
	assert.NotEmpty(t, row.Error)

	// Exactly one failure: the gated call. The direct retry must not
	// inflate the breaker's window.
	stats := reg.Get("tasks").Stats()
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, stats.TotalRequests)
}

func TestProber_OpenBreakerSkipsGatedCall(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := targetFor(t, "tasks", srv.URL)
	reg := newRegistry()
	cb := reg.GetOrCreate("tasks")
	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	p := NewProber(proberConfig(), staticTargets(target), reg)
	row := p.CheckBackend(context.Background(), target)

	// The direct call succeeded, so the backend is reported healthy, but
	// the breaker state stays open and its window is untouched.
	assert.Equal(t, StatusHealthy, row.Status)
	assert.Equal(t, "open", row.CircuitBreakerState)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())
}

func TestProber_CheckAllAggregates(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	broken := httptest.NewServer(http.NotFoundHandler())
	brokenURL := broken.URL
	broken.Close()

	targets := staticTargets(
		targetFor(t, "tasks", healthy.URL),
		targetFor(t, "media", brokenURL),
	)
	p := NewProber(proberConfig(), targets, newRegistry())

	report := p.CheckAll(context.Background())

	assert.Equal(t, StatusDegraded, report.Status)
	require.Len(t, report.Services, 2)

	// Rows come back sorted by backend name.
	assert.Equal(t, "media", report.Services[0].Name)
	assert.Equal(t, StatusUnhealthy, report.Services[0].Status)
	assert.Equal(t, "tasks", report.Services[1].Name)
	assert.Equal(t, StatusHealthy, report.Services[1].Status)

	assert.Contains(t, report.CircuitBreakers, "tasks")
	assert.Contains(t, report.CircuitBreakers, "media")
	assert.False(t, report.Timestamp.IsZero())
}

func TestProber_CheckAllHealthyFleet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	targets := staticTargets(
		targetFor(t, "tasks", srv.URL),
		targetFor(t, "albums", srv.URL),
	)
	p := NewProber(proberConfig(), targets, newRegistry())

	report := p.CheckAll(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
}

func TestProber_Handler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(proberConfig(), staticTargets(targetFor(t, "tasks", srv.URL)), newRegistry())

	w := httptest.NewRecorder()
	p.Handler()(w, httptest.NewRequest("GET", "/health", nil))

	// Degraded or not, the endpoint answers 200 with the report body.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var report Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, StatusHealthy, report.Status)
	require.Len(t, report.Services, 1)
	assert.Equal(t, "tasks", report.Services[0].Name)
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
