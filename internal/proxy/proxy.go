package proxy

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dkovalev/taskgw/internal/backend"
	"github.com/dkovalev/taskgw/internal/observability"
	"github.com/dkovalev/taskgw/internal/util"
)

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Config holds forwarding settings shared by both strategies.
type Config struct {
	// Timeout is the hard per-request deadline; on expiry the backend
	// connection is aborted and the outcome is a timeout.
	Timeout time.Duration

	// ServiceName is the value of the X-Forwarded-By marker header.
	ServiceName string
}

// Forwarder forwards one request to a backend target.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request, target *backend.Target) Outcome
}

// Proxy selects a strategy per request and forwards through it.
type Proxy struct {
	cfg       Config
	logger    observability.Logger
	streaming Forwarder
	buffering Forwarder
}

// Option is a functional option for configuring the proxy.
type Option func(*Proxy)

// WithLogger sets the logger for the proxy.
func WithLogger(logger observability.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithTransport sets the outbound transport for both strategies.
func WithTransport(transport *http.Transport) Option {
	return func(p *Proxy) {
		p.streaming = newStreamingForwarder(p.cfg, transport)
		p.buffering = newBufferingForwarder(p.cfg, transport)
	}
}

// New creates a proxy with both forwarding strategies wired to a shared
// transport.
func New(cfg Config, opts ...Option) *Proxy {
	transport := defaultTransport()

	p := &Proxy{
		cfg:       cfg,
		logger:    observability.NopLogger(),
		streaming: newStreamingForwarder(cfg, transport),
		buffering: newBufferingForwarder(cfg, transport),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// defaultTransport returns the shared outbound transport.
func defaultTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Forward selects the strategy for the request and forwards through it.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request, target *backend.Target) Outcome {
	strategy := SelectStrategy(r.Method, r.Header.Get("Content-Type"))

	start := time.Now()

	var outcome Outcome
	switch strategy {
	case StrategyStreaming:
		outcome = p.streaming.Forward(w, r, target)
	default:
		outcome = p.buffering.Forward(w, r, target)
	}
	outcome.Duration = time.Since(start)

	recordForward(target.Name, strategy, outcome)

	if outcome.Kind != ErrorKindNone {
		p.logger.WithContext(r.Context()).Warn("forwarding failed",
			observability.String("backend", target.Name),
			observability.String("strategy", strategy.String()),
			observability.String("kind", string(outcome.Kind)),
			observability.Duration("duration", outcome.Duration),
			observability.Error(outcome.Err),
		)
	} else {
		p.logger.WithContext(r.Context()).Debug("request forwarded",
			observability.String("backend", target.Name),
			observability.String("strategy", strategy.String()),
			observability.Int("status", outcome.StatusCode),
			observability.Duration("duration", outcome.Duration),
		)
	}

	return outcome
}

// decorateOutbound applies the shared outbound request decoration: hop
// header stripping, correlation propagation, forwarding markers, and
// X-Forwarded-* headers derived from the inbound request.
func decorateOutbound(req *http.Request, inbound *http.Request, target *backend.Target, service string) {
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}

	if id := util.CorrelationIDFromContext(inbound.Context()); id != "" {
		req.Header.Set(util.HeaderCorrelationID, id)
	}
	req.Header.Set(util.HeaderRequestID, uuid.New().String())
	req.Header.Set(util.HeaderForwardedBy, service)

	if clientIP, _, err := net.SplitHostPort(inbound.RemoteAddr); err == nil {
		if prior := inbound.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	if inbound.TLS != nil {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	req.Header.Set("X-Forwarded-Host", inbound.Host)

	req.Host = target.BaseURL.Host
}

// annotateResponse adds the gateway response headers: measured response
// time and the echoed correlation ID.
func annotateResponse(h http.Header, inbound *http.Request, start time.Time) {
	elapsed := util.ElapsedTime(inbound.Context())
	if elapsed == 0 {
		elapsed = time.Since(start)
	}
	h.Set(util.HeaderResponseTime, fmt.Sprintf("%dms", elapsed.Milliseconds()))

	if id := util.CorrelationIDFromContext(inbound.Context()); id != "" {
		h.Set(util.HeaderCorrelationID, id)
	}
}
