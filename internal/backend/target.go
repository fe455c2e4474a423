// Package backend defines the immutable descriptors for downstream services
// the gateway forwards to.
package backend

import (
	"fmt"
	"net/url"

	"github.com/dkovalev/taskgw/internal/config"
)

// Target is an immutable descriptor for one downstream service. Targets are
// built from configuration at startup (and rebuilt wholesale on config
// reload); they are never mutated in place.
type Target struct {
	// Name identifies the backend; it also keys the backend's circuit
	// breaker.
	Name string

	// BaseURL is the parsed base URL requests are forwarded to.
	BaseURL *url.URL

	// PathPrefix is the externally visible prefix, e.g. "/api/tasks".
	PathPrefix string

	// RewritePrefix replaces PathPrefix before forwarding, e.g. "/tasks".
	RewritePrefix string
}

// NewTarget builds a Target from a backend configuration entry.
func NewTarget(cfg config.BackendConfig) (*Target, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("backend %q: invalid baseURL: %w", cfg.Name, err)
	}

	return &Target{
		Name:          cfg.Name,
		BaseURL:       u,
		PathPrefix:    cfg.PathPrefix,
		RewritePrefix: cfg.RewritePrefix,
	}, nil
}

// BuildTargets builds targets for every configured backend.
func BuildTargets(cfgs []config.BackendConfig) ([]*Target, error) {
	targets := make([]*Target, 0, len(cfgs))
	for _, cfg := range cfgs {
		t, err := NewTarget(cfg)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// HealthURL returns the absolute URL of the backend's health endpoint.
func (t *Target) HealthURL(path string) string {
	u := *t.BaseURL
	u.Path = path
	u.RawQuery = ""
	return u.String()
}
