// Package config provides unified configuration loading for the dispatch
// orchestrator: defaults first, then an optional YAML file, then DISPATCH_*
// environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete configuration for the dispatch service.
type Config struct {
	// Server holds HTTP server settings.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Registry holds agent registry and catalog cache settings.
	Registry RegistryConfig `yaml:"registry" env:"REGISTRY"`

	// Matcher holds the semantic matcher / query decomposer capability settings.
	Matcher MatcherConfig `yaml:"matcher" env:"MATCHER"`

	// Transport holds agent transport settings.
	Transport TransportConfig `yaml:"transport" env:"TRANSPORT"`

	// Redis holds the optional snapshot store settings.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database holds the optional request history settings.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log holds logging settings.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry holds OpenTelemetry settings.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP serving surface.
type ServerConfig struct {
	// HTTPPort is the port for the message API.
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// MetricsPort is the port for the Prometheus endpoint.
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// ReadTimeout bounds request reads.
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// WriteTimeout bounds response writes.
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// RateLimitRPS is the per-IP request rate limit. Zero disables limiting.
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// RateLimitBurst is the per-IP burst allowance.
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// RegistryConfig configures the agent registry client and catalog cache.
type RegistryConfig struct {
	// URL is the base URL of the agent registry.
	URL string `yaml:"url" env:"URL"`
	// HealthTimeout bounds the startup health probe.
	HealthTimeout time.Duration `yaml:"health_timeout" env:"HEALTH_TIMEOUT"`
	// FetchTimeout bounds a full catalog refresh.
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
	// CacheTTL is how long a catalog snapshot is served without refresh.
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// FetchConcurrency bounds concurrent per-agent detail fetches.
	FetchConcurrency int `yaml:"fetch_concurrency" env:"FETCH_CONCURRENCY"`
}

// MatcherConfig configures the LLM-backed matching and decomposition
// capabilities. Both share one OpenAI-compatible endpoint.
type MatcherConfig struct {
	// BaseURL is the base URL of the OpenAI-compatible API.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// APIKey authenticates against the API.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// Model is the model used for matching and decomposition.
	Model string `yaml:"model" env:"MODEL"`
	// Timeout bounds a single capability call.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// DecompositionEnabled gates the query decomposition stage.
	DecompositionEnabled bool `yaml:"decomposition_enabled" env:"DECOMPOSITION_ENABLED"`
}

// TransportConfig configures agent call execution.
type TransportConfig struct {
	// SessionEnabled gates the persistent-session fast path.
	SessionEnabled bool `yaml:"session_enabled" env:"SESSION_ENABLED"`
	// SessionTimeout bounds a fast-path call. Must not exceed HTTPTimeout.
	SessionTimeout time.Duration `yaml:"session_timeout" env:"SESSION_TIMEOUT"`
	// HTTPTimeout bounds a fallback-path call.
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT"`
	// ExecuteConcurrency bounds concurrent agent calls within one request.
	ExecuteConcurrency int `yaml:"execute_concurrency" env:"EXECUTE_CONCURRENCY"`
	// RequestBudget is the overall deadline for one dispatched request.
	RequestBudget time.Duration `yaml:"request_budget" env:"REQUEST_BUDGET"`
	// Sessions maps agent IDs to fast-path endpoints.
	Sessions map[string]string `yaml:"sessions" env:"-"`
}

// RedisConfig configures the optional catalog snapshot store.
type RedisConfig struct {
	// Enabled turns the snapshot store on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Addr is the Redis address.
	Addr string `yaml:"addr" env:"ADDR"`
	// Password is the Redis password.
	Password string `yaml:"password" env:"PASSWORD"`
	// DB is the Redis database number.
	DB int `yaml:"db" env:"DB"`
	// SnapshotTTL bounds how long a persisted snapshot stays usable.
	SnapshotTTL time.Duration `yaml:"snapshot_ttl" env:"SNAPSHOT_TTL"`
}

// DatabaseConfig configures the optional request history store.
type DatabaseConfig struct {
	// Enabled turns history recording on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Driver selects the database driver: sqlite or postgres.
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN is the connection string (file path for sqlite).
	DSN string `yaml:"dsn" env:"DSN"`
}

// LogConfig configures zap logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap output sinks.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller adds caller annotations.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace adds stacktraces on error logs.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	// Enabled turns OTLP export on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// ServiceName identifies this service in traces.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// OTLPEndpoint is the gRPC collector endpoint.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// SampleRate is the trace sampling ratio in [0,1].
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
		},
		Registry: RegistryConfig{
			URL:              "http://localhost:6900",
			HealthTimeout:    5 * time.Second,
			FetchTimeout:     10 * time.Second,
			CacheTTL:         5 * time.Minute,
			FetchConcurrency: 4,
		},
		Matcher: MatcherConfig{
			BaseURL:              "https://api.openai.com",
			Model:                "gpt-4o-mini",
			Timeout:              20 * time.Second,
			DecompositionEnabled: true,
		},
		Transport: TransportConfig{
			SessionEnabled:     false,
			SessionTimeout:     10 * time.Second,
			HTTPTimeout:        15 * time.Second,
			ExecuteConcurrency: 4,
			RequestBudget:      30 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:     false,
			Addr:        "localhost:6379",
			SnapshotTTL: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Enabled: false,
			Driver:  "sqlite",
			DSN:     "dispatch.db",
		},
		Log: LogConfig{
			Level:            "info",
			Format:           "json",
			OutputPaths:      []string{"stdout"},
			EnableCaller:     true,
			EnableStacktrace: false,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "dispatch",
			SampleRate:  1.0,
		},
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	var errs []string

	if c.Registry.URL == "" {
		errs = append(errs, "registry.url must not be empty")
	}
	if c.Registry.CacheTTL <= 0 {
		errs = append(errs, "registry.cache_ttl must be positive")
	}
	if c.Transport.HTTPTimeout <= 0 {
		errs = append(errs, "transport.http_timeout must be positive")
	}
	// Attempting both paths sequentially must fit one logical call, so the
	// fast path may not outlast the fallback budget.
	if c.Transport.SessionEnabled && c.Transport.SessionTimeout > c.Transport.HTTPTimeout {
		errs = append(errs, "transport.session_timeout must not exceed transport.http_timeout")
	}
	if c.Transport.ExecuteConcurrency < 1 {
		errs = append(errs, "transport.execute_concurrency must be at least 1")
	}
	if c.Database.Enabled && c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be in [0,1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
