// Package circuitbreaker implements a per-backend circuit breaker with a
// bucketed rolling error-rate window. It prevents cascading failures by
// failing fast while a backend is unhealthy and probing for recovery.
package circuitbreaker

import (
	"time"
)

// Config holds configuration for a circuit breaker.
type Config struct {
	// Window is the rolling wall-clock duration over which the error rate
	// is computed.
	Window time.Duration

	// Buckets is the number of time buckets the window is split into.
	Buckets int

	// FailureRatio is the error-rate threshold (0.0 to 1.0). When the
	// live window holds at least MinRequests outcomes and the failure
	// ratio reaches this value, the circuit opens.
	FailureRatio float64

	// MinRequests is the minimum sample size in the window before the
	// failure ratio is evaluated.
	MinRequests int

	// ResetTimeout is how long the circuit stays open before the next
	// call is allowed through as a probe.
	ResetTimeout time.Duration

	// CallTimeout bounds calls executed through Execute; a call exceeding
	// it is aborted and counted as a failure.
	CallTimeout time.Duration

	// OnStateChange is called when the circuit breaker state changes.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Window:       10 * time.Second,
		Buckets:      10,
		FailureRatio: 0.5,
		MinRequests:  10,
		ResetTimeout: 30 * time.Second,
		CallTimeout:  8 * time.Second,
	}
}

// Validate normalizes out-of-range values to their defaults.
func (c *Config) Validate() error {
	d := DefaultConfig()
	if c.Window < time.Millisecond {
		c.Window = d.Window
	}
	if c.Buckets < 1 {
		c.Buckets = d.Buckets
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = d.FailureRatio
	}
	if c.MinRequests < 1 {
		c.MinRequests = d.MinRequests
	}
	if c.ResetTimeout < time.Millisecond {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.CallTimeout < time.Millisecond {
		c.CallTimeout = d.CallTimeout
	}
	return nil
}

// WithOnStateChange sets the state change callback.
func (c *Config) WithOnStateChange(fn func(name string, from, to State)) *Config {
	c.OnStateChange = fn
	return c
}

// WithFailureRatio sets the error-rate threshold.
func (c *Config) WithFailureRatio(ratio float64) *Config {
	c.FailureRatio = ratio
	return c
}

// WithMinRequests sets the minimum window sample size.
func (c *Config) WithMinRequests(n int) *Config {
	c.MinRequests = n
	return c
}

// WithResetTimeout sets the open-state reset timeout.
func (c *Config) WithResetTimeout(d time.Duration) *Config {
	c.ResetTimeout = d
	return c
}
