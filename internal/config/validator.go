package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for errors. Defaults should have been
// applied first; Validate rejects rather than repairs.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}

	names := make(map[string]bool, len(c.Backends))
	prefixes := make(map[string]bool, len(c.Backends))

	for i, b := range c.Backends {
		if err := validateBackend(i, b); err != nil {
			return err
		}
		if names[b.Name] {
			return fmt.Errorf("duplicate backend name %q", b.Name)
		}
		if prefixes[b.PathPrefix] {
			return fmt.Errorf("duplicate backend path prefix %q", b.PathPrefix)
		}
		names[b.Name] = true
		prefixes[b.PathPrefix] = true
	}

	if err := c.CircuitBreaker.validate(); err != nil {
		return err
	}

	if c.Proxy.Timeout <= 0 {
		return fmt.Errorf("proxy.timeout must be positive")
	}

	if !strings.HasPrefix(c.Health.Path, "/") {
		return fmt.Errorf("health.path must start with /, got %q", c.Health.Path)
	}
	if c.Health.DirectTimeout <= 0 {
		return fmt.Errorf("health.directTimeout must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RPS < 1 {
			return fmt.Errorf("rateLimit.rps must be at least 1 when rate limiting is enabled")
		}
		if c.RateLimit.Burst < 1 {
			return fmt.Errorf("rateLimit.burst must be at least 1 when rate limiting is enabled")
		}
	}

	return nil
}

// validateBackend validates one backend entry.
func validateBackend(i int, b BackendConfig) error {
	if b.Name == "" {
		return fmt.Errorf("backends[%d]: name is required", i)
	}
	if b.BaseURL == "" {
		return fmt.Errorf("backend %q: baseURL is required", b.Name)
	}

	u, err := url.Parse(b.BaseURL)
	if err != nil {
		return fmt.Errorf("backend %q: invalid baseURL: %w", b.Name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend %q: baseURL scheme must be http or https, got %q", b.Name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("backend %q: baseURL has no host", b.Name)
	}

	if !strings.HasPrefix(b.PathPrefix, "/") {
		return fmt.Errorf("backend %q: pathPrefix must start with /, got %q", b.Name, b.PathPrefix)
	}
	if b.PathPrefix != "/" && strings.HasSuffix(b.PathPrefix, "/") {
		return fmt.Errorf("backend %q: pathPrefix must not end with /, got %q", b.Name, b.PathPrefix)
	}
	if b.RewritePrefix != "" && !strings.HasPrefix(b.RewritePrefix, "/") {
		return fmt.Errorf("backend %q: rewritePrefix must start with /, got %q", b.Name, b.RewritePrefix)
	}

	return nil
}

// validate validates circuit breaker tunables.
func (b BreakerConfig) validate() error {
	if b.Window <= 0 {
		return fmt.Errorf("circuitBreaker.window must be positive")
	}
	if b.Buckets < 1 {
		return fmt.Errorf("circuitBreaker.buckets must be at least 1")
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		return fmt.Errorf("circuitBreaker.failureRatio must be in (0, 1], got %v", b.FailureRatio)
	}
	if b.MinRequests < 1 {
		return fmt.Errorf("circuitBreaker.minRequests must be at least 1")
	}
	if b.ResetTimeout <= 0 {
		return fmt.Errorf("circuitBreaker.resetTimeout must be positive")
	}
	if b.CallTimeout <= 0 {
		return fmt.Errorf("circuitBreaker.callTimeout must be positive")
	}
	return nil
}
