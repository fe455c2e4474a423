package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and requests are allowed.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and requests are rejected.
	StateOpen

	// StateHalfOpen indicates a single probe is testing backend recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// bucket holds success/failure counts for one slice of the rolling window.
// epoch identifies which window slice the counts belong to, so stale slots
// are discarded lazily on the next touch instead of by a background sweep.
type bucket struct {
	epoch     int64
	successes int
	failures  int
}

// CircuitBreaker gates calls to one backend. All state is guarded by a
// single mutex; breakers for different backends are fully independent.
type CircuitBreaker struct {
	name   string
	config *Config
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State

	buckets   []bucket
	bucketDur time.Duration

	openedAt        time.Time
	lastStateChange time.Time
	probeInFlight   bool
}

// New creates a new circuit breaker in the closed state.
func New(name string, config *Config, logger *zap.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	_ = config.Validate()

	if logger == nil {
		logger = zap.NewNop()
	}

	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		now:             time.Now,
		state:           StateClosed,
		buckets:         make([]bucket, config.Buckets),
		bucketDur:       config.Window / time.Duration(config.Buckets),
		lastStateChange: time.Now(),
	}
}

// Allow reports whether a call may proceed. While open, the first call
// after ResetTimeout transitions the breaker to half-open and is admitted
// as the probe; while half-open with a probe outstanding, every other call
// is rejected as if the breaker were still open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	var allowed bool

	switch cb.state {
	case StateClosed:
		allowed = true

	case StateOpen:
		if now.Sub(cb.openedAt) >= cb.config.ResetTimeout {
			cb.transitionTo(StateHalfOpen, now)
			cb.probeInFlight = true
			allowed = true
		}

	case StateHalfOpen:
		if !cb.probeInFlight {
			cb.probeInFlight = true
			allowed = true
		}
	}

	recordRequest(cb.name, allowed)

	return allowed
}

// RecordOutcome records the result of an allowed call.
func (cb *CircuitBreaker) RecordOutcome(success bool) {
	if success {
		cb.RecordSuccess()
	} else {
		cb.RecordFailure()
	}
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	recordSuccess(cb.name)

	switch cb.state {
	case StateHalfOpen:
		// Probe succeeded: the backend has recovered.
		cb.transitionTo(StateClosed, now)

	default:
		cb.currentBucket(now).successes++
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	recordFailure(cb.name)

	switch cb.state {
	case StateHalfOpen:
		// Probe failed: back to open with a fresh reset window.
		cb.transitionTo(StateOpen, now)

	case StateClosed:
		cb.currentBucket(now).failures++
		if cb.shouldOpen(now) {
			cb.transitionTo(StateOpen, now)
		}

	case StateOpen:
		// Late result from a call admitted before the transition.
	}
}

// Execute runs fn with circuit breaker protection and the configured call
// timeout. The timeout aborts the underlying I/O via context cancellation
// and counts as a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, cb.config.CallTimeout)
	defer cancel()

	err := fn(callCtx)
	cb.RecordOutcome(err == nil)
	return err
}

// shouldOpen evaluates the error rate over the live window. Caller holds
// the mutex.
func (cb *CircuitBreaker) shouldOpen(now time.Time) bool {
	successes, failures := cb.windowCounts(now)
	total := successes + failures
	if total < cb.config.MinRequests {
		return false
	}
	return float64(failures)/float64(total) >= cb.config.FailureRatio
}

// currentBucket returns the bucket for now, resetting the slot if it holds
// counts from an expired window slice. Caller holds the mutex.
func (cb *CircuitBreaker) currentBucket(now time.Time) *bucket {
	epoch := now.UnixNano() / int64(cb.bucketDur)
	slot := &cb.buckets[int(epoch%int64(len(cb.buckets)))]
	if slot.epoch != epoch {
		slot.epoch = epoch
		slot.successes = 0
		slot.failures = 0
	}
	return slot
}

// windowCounts sums the buckets still inside the rolling window. Caller
// holds the mutex.
func (cb *CircuitBreaker) windowCounts(now time.Time) (successes, failures int) {
	epoch := now.UnixNano() / int64(cb.bucketDur)
	oldest := epoch - int64(len(cb.buckets)) + 1
	for i := range cb.buckets {
		b := &cb.buckets[i]
		if b.epoch >= oldest && b.epoch <= epoch {
			successes += b.successes
			failures += b.failures
		}
	}
	return successes, failures
}

// transitionTo moves the breaker to a new state. Caller holds the mutex.
func (cb *CircuitBreaker) transitionTo(newState State, now time.Time) {
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = now
	cb.probeInFlight = false

	switch newState {
	case StateOpen:
		cb.openedAt = now
	case StateClosed:
		cb.resetWindow()
	}

	recordStateChange(cb.name, oldState, newState)

	cb.logger.Info("circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
	)

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.name, oldState, newState)
	}
}

// resetWindow clears all window counters. Caller holds the mutex.
func (cb *CircuitBreaker) resetWindow() {
	for i := range cb.buckets {
		cb.buckets[i] = bucket{}
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the circuit breaker back to closed with empty counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.probeInFlight = false
	cb.resetWindow()
	cb.lastStateChange = cb.now()

	cb.logger.Info("circuit breaker reset",
		zap.String("name", cb.name),
	)
}

// Stats holds a snapshot of circuit breaker statistics.
type Stats struct {
	State           State     `json:"state"`
	Successes       int       `json:"successes"`
	Failures        int       `json:"failures"`
	TotalRequests   int       `json:"totalRequests"`
	ErrorRate       float64   `json:"errorRate"`
	OpenedAt        time.Time `json:"openedAt,omitempty"`
	LastStateChange time.Time `json:"lastStateChange"`
	ProbeInFlight   bool      `json:"probeInFlight"`
}

// MarshalText makes State render as its string form in JSON maps and
// structs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the string form produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = StateClosed
	case "open":
		*s = StateOpen
	case "half-open":
		*s = StateHalfOpen
	default:
		return fmt.Errorf("unknown circuit breaker state %q", text)
	}
	return nil
}

// Stats returns a snapshot of the current window statistics.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	successes, failures := cb.windowCounts(cb.now())
	total := successes + failures

	stats := Stats{
		State:           cb.state,
		Successes:       successes,
		Failures:        failures,
		TotalRequests:   total,
		LastStateChange: cb.lastStateChange,
		ProbeInFlight:   cb.probeInFlight,
	}
	if total > 0 {
		stats.ErrorRate = float64(failures) / float64(total)
	}
	if cb.state != StateClosed {
		stats.OpenedAt = cb.openedAt
	}
	return stats
}
