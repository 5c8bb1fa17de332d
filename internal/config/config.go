// Package config provides centralized configuration management for sheetload.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"errors"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Ingest   IngestConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Watch    WatchConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds sink connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Required by commands that write.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// Schema is the schema every table is written to (default: public)
	Schema string `env:"DB_SCHEMA" default:"public"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// IngestConfig holds file processing settings.
type IngestConfig struct {
	// SettingsPath is the file type configuration document, JSON or YAML (default: settings.json)
	SettingsPath string `env:"SHEETLOAD_SETTINGS" default:"settings.json"`

	// SettingsBackups is how many settings backups to keep on save (default: 5)
	SettingsBackups int `env:"SHEETLOAD_SETTINGS_BACKUPS" default:"5"`

	// ProcessedDir is where loaded files are moved. Relative paths resolve
	// against each file's directory (default: Uploaded)
	ProcessedDir string `env:"SHEETLOAD_PROCESSED_DIR" default:"Uploaded"`

	// Tolerance is the percentage of rows a validation issue may affect
	// before the file fails (default: 0)
	Tolerance float64 `env:"SHEETLOAD_TOLERANCE" default:"0"`

	// Workers bounds concurrent file loads per replace type; 0 means min(4, GOMAXPROCS)
	Workers int `env:"SHEETLOAD_WORKERS" default:"0"`

	// ChunkSize is the number of rows per chunk when streaming large files (default: 10000)
	ChunkSize int `env:"SHEETLOAD_CHUNK_SIZE" default:"10000"`

	// LargeFileThreshold is the size in bytes at which reads are chunked (default: 100MB)
	LargeFileThreshold int64 `env:"SHEETLOAD_LARGE_FILE_THRESHOLD" default:"104857600"`

	// MaxConcurrentRuns is the number of runs allowed at once (default: 1)
	MaxConcurrentRuns int `env:"SHEETLOAD_MAX_CONCURRENT_RUNS" default:"1"`

	// RunWait is how long to wait for a run slot (default: 5s)
	RunWait time.Duration `env:"SHEETLOAD_RUN_WAIT" default:"5s"`

	// AllowedRoots is a comma-separated list of directories the HTTP API may
	// read from. Empty allows any path.
	AllowedRoots []string `env:"SHEETLOAD_ALLOWED_ROOTS"`
}

// RateLimitConfig holds per-IP rate limiting settings for the HTTP API.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// RunLimit is requests per minute for run endpoints (default: 10)
	RunLimit int `env:"RATE_LIMIT_RUNS" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey enforces API key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	// Dirs is a comma-separated list of directories to watch
	Dirs []string `env:"WATCH_DIRS"`

	// Interval is how often the directories are scanned (default: 1m)
	Interval time.Duration `env:"WATCH_INTERVAL" default:"1m"`
}

// ErrNoDatabase is returned by RequireDatabase when no URL is configured.
var ErrNoDatabase = errors.New("DATABASE_URL is required")

// RequireDatabase checks the settings needed by commands that write.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return ErrNoDatabase
	}
	return nil
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
