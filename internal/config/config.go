// Package config provides configuration management for the gateway. It
// supports YAML files with environment variable substitution, validation
// with documented defaults, and hot reload via filesystem notifications.
package config

import (
	"time"
)

// Config holds all configuration settings for the gateway.
type Config struct {
	Server         ServerConfig    `yaml:"server"`
	Gateway        GatewayConfig   `yaml:"gateway"`
	Backends       []BackendConfig `yaml:"backends"`
	CircuitBreaker BreakerConfig   `yaml:"circuitBreaker"`
	Proxy          ProxyConfig     `yaml:"proxy"`
	Health         HealthConfig    `yaml:"health"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	CORS           CORSConfig      `yaml:"cors"`
	Log            LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Bind            string   `yaml:"bind"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// GatewayConfig holds gateway identity settings.
type GatewayConfig struct {
	// ServiceName is reported in error bodies and in the X-Forwarded-By
	// marker header on outbound requests.
	ServiceName string `yaml:"serviceName"`
}

// BackendConfig describes one downstream service the gateway forwards to.
type BackendConfig struct {
	Name          string `yaml:"name"`
	BaseURL       string `yaml:"baseURL"`
	PathPrefix    string `yaml:"pathPrefix"`
	RewritePrefix string `yaml:"rewritePrefix"`
}

// BreakerConfig holds circuit breaker tunables applied to every backend.
type BreakerConfig struct {
	// Window is the rolling window duration over which the error rate is
	// computed.
	Window Duration `yaml:"window"`

	// Buckets is the number of time buckets the window is split into.
	Buckets int `yaml:"buckets"`

	// FailureRatio is the error-rate threshold (0.0 to 1.0) that opens the
	// circuit.
	FailureRatio float64 `yaml:"failureRatio"`

	// MinRequests is the minimum sample size in the window before the
	// failure ratio is evaluated.
	MinRequests int `yaml:"minRequests"`

	// ResetTimeout is how long the circuit stays open before a probe is
	// allowed through.
	ResetTimeout Duration `yaml:"resetTimeout"`

	// CallTimeout bounds breaker-gated calls; a call exceeding it counts
	// as a failure.
	CallTimeout Duration `yaml:"callTimeout"`
}

// ProxyConfig holds forwarding settings.
type ProxyConfig struct {
	// Timeout is the hard per-request timeout for forwarded calls.
	Timeout Duration `yaml:"timeout"`
}

// HealthConfig holds health probing settings.
type HealthConfig struct {
	// Path is the health endpoint exposed by every backend.
	Path string `yaml:"path"`

	// DirectTimeout bounds the un-gated direct fallback call.
	DirectTimeout Duration `yaml:"directTimeout"`
}

// RateLimitConfig holds inbound rate limiting settings.
type RateLimitConfig struct {
	Enabled   bool `yaml:"enabled"`
	RPS       int  `yaml:"rps"`
	Burst     int  `yaml:"burst"`
	PerClient bool `yaml:"perClient"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	AllowedMethods []string `yaml:"allowedMethods"`
	AllowedHeaders []string `yaml:"allowedHeaders"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default values for tunables left unset in the configuration file.
const (
	DefaultServerPort      = 8080
	DefaultShutdownTimeout = 15 * time.Second

	DefaultBreakerWindow       = 10 * time.Second
	DefaultBreakerBuckets      = 10
	DefaultBreakerFailureRatio = 0.5
	DefaultBreakerMinRequests  = 10
	DefaultBreakerResetTimeout = 30 * time.Second
	DefaultBreakerCallTimeout  = 8 * time.Second

	DefaultProxyTimeout        = 10 * time.Second
	DefaultHealthPath          = "/health"
	DefaultHealthDirectTimeout = 3 * time.Second

	DefaultServiceName = "taskgw"
)

// DefaultConfig returns a Config with default values and no backends.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:            "0.0.0.0",
			Port:            DefaultServerPort,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},
		Gateway: GatewayConfig{
			ServiceName: DefaultServiceName,
		},
		CircuitBreaker: BreakerConfig{
			Window:       Duration(DefaultBreakerWindow),
			Buckets:      DefaultBreakerBuckets,
			FailureRatio: DefaultBreakerFailureRatio,
			MinRequests:  DefaultBreakerMinRequests,
			ResetTimeout: Duration(DefaultBreakerResetTimeout),
			CallTimeout:  Duration(DefaultBreakerCallTimeout),
		},
		Proxy: ProxyConfig{
			Timeout: Duration(DefaultProxyTimeout),
		},
		Health: HealthConfig{
			Path:          DefaultHealthPath,
			DirectTimeout: Duration(DefaultHealthDirectTimeout),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// ApplyDefaults fills zero-valued tunables with their defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	if c.Server.Bind == "" {
		c.Server.Bind = d.Server.Bind
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = d.Server.IdleTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	if c.Gateway.ServiceName == "" {
		c.Gateway.ServiceName = d.Gateway.ServiceName
	}

	if c.CircuitBreaker.Window == 0 {
		c.CircuitBreaker.Window = d.CircuitBreaker.Window
	}
	if c.CircuitBreaker.Buckets == 0 {
		c.CircuitBreaker.Buckets = d.CircuitBreaker.Buckets
	}
	if c.CircuitBreaker.FailureRatio == 0 {
		c.CircuitBreaker.FailureRatio = d.CircuitBreaker.FailureRatio
	}
	if c.CircuitBreaker.MinRequests == 0 {
		c.CircuitBreaker.MinRequests = d.CircuitBreaker.MinRequests
	}
	if c.CircuitBreaker.ResetTimeout == 0 {
		c.CircuitBreaker.ResetTimeout = d.CircuitBreaker.ResetTimeout
	}
	if c.CircuitBreaker.CallTimeout == 0 {
		c.CircuitBreaker.CallTimeout = d.CircuitBreaker.CallTimeout
	}

	if c.Proxy.Timeout == 0 {
		c.Proxy.Timeout = d.Proxy.Timeout
	}

	if c.Health.Path == "" {
		c.Health.Path = d.Health.Path
	}
	if c.Health.DirectTimeout == 0 {
		c.Health.DirectTimeout = d.Health.DirectTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Log.Output == "" {
		c.Log.Output = d.Log.Output
	}
}
