// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Input    InputConfig
	Pipeline PipelineConfig
	Cache    CacheConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 30s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// InputConfig names the raw extract files.
type InputConfig struct {
	// RegistryPath is the drug registry (NDC) extract
	RegistryPath string `env:"INPUT_REGISTRY_PATH" default:"data/ndc_core.csv"`

	// ShortagesPath is the drug shortage extract
	ShortagesPath string `env:"INPUT_SHORTAGES_PATH" default:"data/drug_shortages_core.csv"`
}

// PipelineConfig holds batch run settings.
type PipelineConfig struct {
	// AsOf fixes the reference date for days_active as YYYY-MM-DD (default: today, UTC)
	AsOf string `env:"PIPELINE_AS_OF"`

	// TieBreak picks among registry rows sharing a product code:
	// package_code or packaging_description (default: package_code)
	TieBreak string `env:"PIPELINE_TIE_BREAK" default:"package_code"`

	// LoadTimeout bounds each table load (default: 5m)
	LoadTimeout time.Duration `env:"PIPELINE_LOAD_TIMEOUT" default:"5m"`

	// ScheduleInterval runs the pipeline periodically in serve mode, 0 disables (default: 0)
	ScheduleInterval time.Duration `env:"PIPELINE_SCHEDULE_INTERVAL" default:"0s"`

	// RunOnStart runs the pipeline once when serve starts (default: false)
	RunOnStart bool `env:"PIPELINE_RUN_ON_START" default:"false"`

	// RowErrorSamples is how many row errors a report keeps verbatim (default: 20)
	RowErrorSamples int `env:"PIPELINE_ROW_ERROR_SAMPLES" default:"20"`

	// ExportDir writes processed tables as CSV when set
	ExportDir string `env:"PIPELINE_EXPORT_DIR"`
}

// CacheConfig holds query cache settings.
type CacheConfig struct {
	// TTL is how long a query result is served from cache (default: 10m)
	TTL time.Duration `env:"CACHE_TTL" default:"10m"`

	// CleanupInterval is how often expired results are evicted (default: 20m)
	CleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" default:"20m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// AsOfDate parses AsOf. The zero time means "today".
func (c *PipelineConfig) AsOfDate() (time.Time, error) {
	if c.AsOf == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(time.DateOnly, c.AsOf, time.UTC)
}
