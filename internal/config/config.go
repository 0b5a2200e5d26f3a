// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Tapkey   TapkeyConfig
	Session  SessionConfig
	Export   ExportConfig
	Database DatabaseConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing the response (default: 0, exports can be slow)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-export requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// TapkeyConfig holds the OAuth client registration and API location.
type TapkeyConfig struct {
	// ClientID is the OAuth client id issued by the platform (required)
	ClientID string `env:"TAPKEY_CLIENT_ID" required:"true"`

	// ClientSecret is the OAuth client secret (required)
	ClientSecret string `env:"TAPKEY_CLIENT_SECRET" required:"true"`

	// TokenEndpoint is the OAuth token URL
	TokenEndpoint string `env:"TAPKEY_TOKEN_ENDPOINT" default:"https://login.tapkey.com/connect/token"`

	// AuthorizationEndpoint is the OAuth authorization URL
	AuthorizationEndpoint string `env:"TAPKEY_AUTHORIZATION_ENDPOINT" default:"https://login.tapkey.com/connect/authorize"`

	// BaseURI is the API host; requests go to {BaseURI}/api/v1/
	BaseURI string `env:"TAPKEY_BASE_URI" default:"https://my.tapkey.com"`

	// Scopes requested during login (space or comma separated)
	Scopes []string `env:"TAPKEY_SCOPES" default:"read:owneraccounts,read:core:entities,read:logs,offline_access"`

	// RedirectURL is the absolute callback URL registered with the platform.
	// Empty derives it from the incoming request host.
	RedirectURL string `env:"TAPKEY_REDIRECT_URL"`

	// RequestTimeout bounds a single remote API call (default: 30s)
	RequestTimeout time.Duration `env:"TAPKEY_REQUEST_TIMEOUT" default:"30s"`
}

// SessionConfig holds login session settings.
type SessionConfig struct {
	// SecretKey signs the session cookie (required)
	// Supports both APP_SECRET_KEY and SECRET_KEY env vars for compatibility
	SecretKey string `env:"APP_SECRET_KEY" envAlt:"SECRET_KEY" required:"true"`

	// Backend is where session data lives: memory or redis (default: memory)
	Backend string `env:"SESSION_BACKEND" default:"memory"`

	// RedisAddr is the Redis host:port for the redis backend
	RedisAddr string `env:"REDIS_ADDR" default:"localhost:6379"`

	// RedisPassword is the Redis password, if any
	RedisPassword string `env:"REDIS_PASSWORD"`

	// RedisDB is the Redis database number (default: 0)
	RedisDB int `env:"REDIS_DB" default:"0"`

	// TTL is how long a login stays valid without activity (default: 12h)
	TTL time.Duration `env:"SESSION_TTL" default:"12h"`

	// CookieName is the session cookie name (default: lockexport_session)
	CookieName string `env:"SESSION_COOKIE_NAME" default:"lockexport_session"`

	// CookieSecure sets the Secure attribute on the cookie (default: true)
	CookieSecure bool `env:"SESSION_COOKIE_SECURE" default:"true"`
}

// ExportConfig holds export pipeline settings.
type ExportConfig struct {
	// PageSize is the $top used when paging log entries (default: 500)
	PageSize int `env:"EXPORT_PAGE_SIZE" default:"500"`

	// LookupChunkSize is the maximum ids per lookup filter (default: 40)
	LookupChunkSize int `env:"EXPORT_LOOKUP_CHUNK_SIZE" default:"40"`

	// LookupMode is batch (id filters) or full (whole collections) (default: batch)
	LookupMode string `env:"EXPORT_LOOKUP_MODE" default:"batch"`

	// Timeout is the maximum duration of one export (default: 5m)
	Timeout time.Duration `env:"EXPORT_TIMEOUT" default:"5m"`

	// MaxConcurrent is the maximum number of parallel exports (default: 4)
	MaxConcurrent int `env:"EXPORT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for an export slot (default: 30s)
	MaxWaitTime time.Duration `env:"EXPORT_MAX_WAIT_TIME" default:"30s"`
}

// DatabaseConfig holds the optional audit database settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string for the export audit trail.
	// Empty logs audit records instead of storing them.
	// Supports both AUDIT_DATABASE_URL and DATABASE_URL env vars for compatibility
	URL string `env:"AUDIT_DATABASE_URL" envAlt:"DATABASE_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 5)
	MaxConns int `env:"DB_MAX_CONNS" default:"5"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// DownloadLimit is requests per minute for the download endpoint (default: 10)
	DownloadLimit int `env:"RATE_LIMIT_DOWNLOAD" default:"10"`
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

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled serves metrics at Path (default: true)
	Enabled bool `env:"METRICS_ENABLED" default:"true"`

	// Path is the metrics route (default: /metrics)
	Path string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// APIBaseURL returns the versioned API root, always ending in a slash.
func (c *TapkeyConfig) APIBaseURL() string {
	base := c.BaseURI
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/api/v1/"
}

// UseRedis reports whether sessions are kept in Redis.
func (c *SessionConfig) UseRedis() bool {
	return c.Backend == "redis"
}
