package circuitbreaker

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry owns one circuit breaker per backend. It replaces the ambient
// module-level breaker map of earlier designs: the registry is constructed
// once at startup and shared by reference with the router and the health
// prober.
type Registry struct {
	breakers sync.Map
	config   *Config
	logger   *zap.Logger
}

// NewRegistry creates a new circuit breaker registry. New breakers inherit
// config.
func NewRegistry(config *Config, logger *zap.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		config: config,
		logger: logger,
	}
}

// Get returns a circuit breaker by name, or nil if not found.
func (r *Registry) Get(name string) *CircuitBreaker {
	value, ok := r.breakers.Load(name)
	if !ok {
		return nil
	}
	return value.(*CircuitBreaker)
}

// GetOrCreate returns the breaker for name, creating it closed if needed.
func (r *Registry) GetOrCreate(name string) *CircuitBreaker {
	if value, ok := r.breakers.Load(name); ok {
		return value.(*CircuitBreaker)
	}

	cb := New(name, r.config, r.logger)

	actual, loaded := r.breakers.LoadOrStore(name, cb)
	if loaded {
		return actual.(*CircuitBreaker)
	}

	r.logger.Debug("created circuit breaker",
		zap.String("name", name),
	)

	return cb
}

// Names returns the sorted names of all registered breakers.
func (r *Registry) Names() []string {
	var names []string
	r.breakers.Range(func(key, _ interface{}) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Stats returns a statistics snapshot for every registered breaker.
func (r *Registry) Stats() map[string]Stats {
	stats := make(map[string]Stats)
	r.breakers.Range(func(key, value interface{}) bool {
		stats[key.(string)] = value.(*CircuitBreaker).Stats()
		return true
	})
	return stats
}

// States returns the current state of every registered breaker.
func (r *Registry) States() map[string]string {
	states := make(map[string]string)
	r.breakers.Range(func(key, value interface{}) bool {
		states[key.(string)] = value.(*CircuitBreaker).State().String()
		return true
	})
	return states
}

// ResetAll resets every registered breaker to closed.
func (r *Registry) ResetAll() {
	r.breakers.Range(func(_, value interface{}) bool {
		value.(*CircuitBreaker).Reset()
		return true
	})
	r.logger.Info("reset all circuit breakers")
}
