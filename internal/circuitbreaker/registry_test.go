package circuitbreaker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry(DefaultConfig(), zap.NewNop())

	cb := r.GetOrCreate("tasks")
	require.NotNil(t, cb)
	assert.Equal(t, "tasks", cb.Name())
	assert.Equal(t, StateClosed, cb.State())

	// The same instance is returned on every lookup.
	assert.Same(t, cb, r.GetOrCreate("tasks"))
	assert.Same(t, cb, r.Get("tasks"))
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry(nil, nil)

	assert.Nil(t, r.Get("no-such-backend"))
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry(DefaultConfig(), zap.NewNop())

	const goroutines = 32
	results := make([]*CircuitBreaker, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.GetOrCreate("media")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry(DefaultConfig(), zap.NewNop())

	r.GetOrCreate("tasks")
	r.GetOrCreate("albums")
	r.GetOrCreate("media")

	assert.Equal(t, []string{"albums", "media", "tasks"}, r.Names())
}

func TestRegistry_StatsAndStates(t *testing.T) {
	cfg := DefaultConfig().WithMinRequests(1).WithFailureRatio(0.5)
	r := NewRegistry(cfg, zap.NewNop())

	r.GetOrCreate("tasks").RecordSuccess()
	r.GetOrCreate("albums").RecordFailure()

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, 1, stats["tasks"].Successes)
	assert.Equal(t, StateOpen, stats["albums"].State)

	states := r.States()
	assert.Equal(t, "closed", states["tasks"])
	assert.Equal(t, "open", states["albums"])
}

func TestRegistry_ResetAll(t *testing.T) {
	cfg := DefaultConfig().WithMinRequests(1).WithFailureRatio(0.5)
	r := NewRegistry(cfg, zap.NewNop())

	r.GetOrCreate("tasks").RecordFailure()
	r.GetOrCreate("albums").RecordFailure()
	require.Equal(t, StateOpen, r.Get("tasks").State())

	r.ResetAll()

	assert.Equal(t, "closed", r.States()["tasks"])
	assert.Equal(t, "closed", r.States()["albums"])
}
