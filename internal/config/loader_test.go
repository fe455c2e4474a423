package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
backends:
  - name: tasks
    baseURL: http://localhost:3001
    pathPrefix: /api/tasks
    rewritePrefix: /tasks
`

func TestLoadFromReader_MinimalConfigGetsDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultServiceName, cfg.Gateway.ServiceName)
	assert.Equal(t, DefaultBreakerWindow, cfg.CircuitBreaker.Window.Duration())
	assert.Equal(t, DefaultBreakerBuckets, cfg.CircuitBreaker.Buckets)
	assert.Equal(t, DefaultBreakerFailureRatio, cfg.CircuitBreaker.FailureRatio)
	assert.Equal(t, DefaultBreakerMinRequests, cfg.CircuitBreaker.MinRequests)
	assert.Equal(t, DefaultBreakerResetTimeout, cfg.CircuitBreaker.ResetTimeout.Duration())
	assert.Equal(t, DefaultBreakerCallTimeout, cfg.CircuitBreaker.CallTimeout.Duration())
	assert.Equal(t, DefaultProxyTimeout, cfg.Proxy.Timeout.Duration())
	assert.Equal(t, DefaultHealthPath, cfg.Health.Path)
	assert.Equal(t, "info", cfg.Log.Level)

	require.Len(t, cfg.Backends, 1)
	assert.Equal(t, "tasks", cfg.Backends[0].Name)
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	yamlData := `
server:
  bind: 127.0.0.1
  port: 9090
  readTimeout: 10s
gateway:
  serviceName: edge
backends:
  - name: tasks
    baseURL: http://tasks:3001
    pathPrefix: /api/tasks
    rewritePrefix: /tasks
  - name: media
    baseURL: http://media:3003
    pathPrefix: /api/media
    rewritePrefix: /media
circuitBreaker:
  window: 20s
  buckets: 20
  failureRatio: 0.3
  minRequests: 5
  resetTimeout: 45s
  callTimeout: 4s
proxy:
  timeout: 15s
health:
  path: /livez
  directTimeout: 2s
rateLimit:
  enabled: true
  rps: 50
  burst: 100
  perClient: true
`
	cfg, err := LoadFromReader(strings.NewReader(yamlData))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Bind)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout.Duration())
	assert.Equal(t, "edge", cfg.Gateway.ServiceName)
	assert.Len(t, cfg.Backends, 2)
	assert.Equal(t, 20*time.Second, cfg.CircuitBreaker.Window.Duration())
	assert.Equal(t, 0.3, cfg.CircuitBreaker.FailureRatio)
	assert.Equal(t, 5, cfg.CircuitBreaker.MinRequests)
	assert.Equal(t, 15*time.Second, cfg.Proxy.Timeout.Duration())
	assert.Equal(t, "/livez", cfg.Health.Path)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 50, cfg.RateLimit.RPS)
	assert.True(t, cfg.RateLimit.PerClient)
}

func TestLoadFromReader_EnvSubstitution(t *testing.T) {
	t.Setenv("TASKS_SERVICE_URL", "http://tasks.internal:3001")

	yamlData := `
backends:
  - name: tasks
    baseURL: ${TASKS_SERVICE_URL:-http://localhost:3001}
    pathPrefix: /api/tasks
    rewritePrefix: /tasks
  - name: albums
    baseURL: ${ALBUMS_SERVICE_URL:-http://localhost:3002}
    pathPrefix: /api/albums
    rewritePrefix: /albums
`
	cfg, err := LoadFromReader(strings.NewReader(yamlData))
	require.NoError(t, err)

	assert.Equal(t, "http://tasks.internal:3001", cfg.Backends[0].BaseURL)
	// Unset variable falls back to the default.
	assert.Equal(t, "http://localhost:3002", cfg.Backends[1].BaseURL)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("GW_TEST_VAR", "value")

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "set variable",
			content: "a: ${GW_TEST_VAR}",
			want:    "a: value",
		},
		{
			name:    "set variable ignores default",
			content: "a: ${GW_TEST_VAR:-other}",
			want:    "a: value",
		},
		{
			name:    "unset variable with default",
			content: "a: ${GW_TEST_UNSET:-fallback}",
			want:    "a: fallback",
		},
		{
			name:    "unset variable without default",
			content: "a: ${GW_TEST_UNSET}",
			want:    "a: ",
		},
		{
			name:    "escaped dollar",
			content: "a: $${GW_TEST_VAR}",
			want:    "a: ${GW_TEST_VAR}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substituteEnvVars(tt.content))
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tasks", cfg.Backends[0].Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadFromReader_InvalidYAML(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("backends: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalYAML(func(v interface{}) error {
		*(v.(*string)) = "1h30m"
		return nil
	}))
	assert.Equal(t, 90*time.Minute, d.Duration())

	out, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1h30m0s", out)
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"250ms"`)))
	assert.Equal(t, 250*time.Millisecond, d.Duration())

	b, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"250ms"`, string(b))

	require.Error(t, d.UnmarshalJSON([]byte(`"not-a-duration"`)))
}
