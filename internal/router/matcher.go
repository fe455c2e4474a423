// Package router dispatches inbound requests: it matches the request path
// to a backend target, applies the backend's circuit breaker gate, forwards
// through the proxy, and renders gateway-level error responses.
package router

import (
	"sort"
	"strings"
	"sync"

	"github.com/dkovalev/taskgw/internal/backend"
)

// Matcher resolves request paths to backend targets by longest-prefix
// match. The target set is replaced wholesale on config reload.
type Matcher struct {
	mu      sync.RWMutex
	targets []*backend.Target // sorted by prefix length, longest first
}

// NewMatcher creates a matcher over the given targets.
func NewMatcher(targets []*backend.Target) *Matcher {
	m := &Matcher{}
	m.Update(targets)
	return m
}

// Update replaces the target set.
func (m *Matcher) Update(targets []*backend.Target) {
	sorted := make([]*backend.Target, len(targets))
	copy(sorted, targets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].PathPrefix) > len(sorted[j].PathPrefix)
	})

	m.mu.Lock()
	m.targets = sorted
	m.mu.Unlock()
}

// Match returns the target whose prefix is the longest match for path, or
// nil when none matches.
func (m *Matcher) Match(path string) *backend.Target {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.targets {
		if prefixMatches(path, t.PathPrefix) {
			return t
		}
	}
	return nil
}

// prefixMatches reports whether path falls under prefix, respecting
// segment boundaries: "/api/task" must not match prefix "/api/tasks".
func prefixMatches(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// Prefixes returns the configured path prefixes, longest first.
func (m *Matcher) Prefixes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefixes := make([]string, len(m.targets))
	for i, t := range m.targets {
		prefixes[i] = t.PathPrefix
	}
	return prefixes
}

// Targets returns the current target set.
func (m *Matcher) Targets() []*backend.Target {
	m.mu.RLock()
	defer m.mu.RUnlock()

	targets := make([]*backend.Target, len(m.targets))
	copy(targets, m.targets)
	return targets
}
