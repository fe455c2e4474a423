package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dkovalev/taskgw/internal/observability"
	"github.com/dkovalev/taskgw/internal/util"
)

// defaultClientTTL is how long an idle per-client limiter entry survives
// before cleanup.
const defaultClientTTL = 10 * time.Minute

// clientEntry holds a per-client limiter and its last access time.
type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter limits inbound request rate, either globally or per client
// IP.
type RateLimiter struct {
	limiter   *rate.Limiter
	perClient bool
	rps       int
	burst     int
	logger    observability.Logger

	mu        sync.Mutex
	clients   map[string]*clientEntry
	clientTTL time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// RateLimiterOption is a functional option for configuring the limiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterLogger sets the logger for the rate limiter.
func WithRateLimiterLogger(logger observability.Logger) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(rps, burst int, perClient bool, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		perClient: perClient,
		rps:       rps,
		burst:     burst,
		logger:    observability.NopLogger(),
		clients:   make(map[string]*clientEntry),
		clientTTL: defaultClientTTL,
		stopCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(rl)
	}

	if rl.perClient {
		go rl.cleanupLoop()
	}

	return rl
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(r) {
				recordRateLimited()

				rl.logger.Debug("request rate limited",
					observability.String("path", r.URL.Path),
					observability.String("remote_addr", r.RemoteAddr),
				)

				util.WriteError(w, http.StatusTooManyRequests, util.ErrorResponse{
					Error:         "rate limit exceeded",
					Timestamp:     time.Now().UTC(),
					CorrelationID: util.CorrelationIDFromContext(r.Context()),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allow checks the request against the applicable limiter.
func (rl *RateLimiter) allow(r *http.Request) bool {
	if !rl.perClient {
		return rl.limiter.Allow()
	}
	return rl.clientLimiter(clientAddr(r)).Allow()
}

// clientLimiter returns the limiter for one client, creating it if needed.
func (rl *RateLimiter) clientLimiter(addr string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.clients[addr]
	if !ok {
		entry = &clientEntry{
			limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst),
		}
		rl.clients[addr] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter
}

// cleanupLoop drops idle per-client entries.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.clientTTL)
			rl.mu.Lock()
			for addr, entry := range rl.clients {
				if entry.lastAccess.Before(cutoff) {
					delete(rl.clients, addr)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// clientAddr extracts the client address, ignoring forwarding headers:
// only RemoteAddr is trusted for limiting.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
