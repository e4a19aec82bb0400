package config

import (
	"context"
	"fmt"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// WebSocketConfig tunes the live connection endpoint.
type WebSocketConfig struct {
	// SendBuffer is the number of outbound frames queued per connection before
	// deliveries to it start failing.
	SendBuffer int
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
}

// Config holds all configuration for the chat service.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode, the X-User-ID header is accepted as the caller identity.
	Mode string

	// Database
	DBURL  string
	DBName string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// Datastore backend type
	DatastoreType string // "mongo" or "memory"

	// Redis
	RedisURL string

	// Infinispan (RESP protocol, connects via go-redis under the covers)
	InfinispanHost           string // host:port (e.g. "localhost:11222")
	InfinispanUsername       string
	InfinispanPassword       string
	InfinispanStartupTimeout time.Duration

	// Cache backend type
	CacheType string // "redis", "infinispan" or "none"

	// How long hydrated user profiles stay cached.
	UserCacheTTL time.Duration

	// OIDC
	OIDCIssuer       string
	OIDCDiscoveryURL string // Internal URL for OIDC discovery (when issuer URL is not reachable)

	// JWTSecret verifies HS256 tokens issued by the account service.
	JWTSecret string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	// Defaults to "service=chat-service".
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port (or CHAT_SERVICE_MANAGEMENT_PORT)
	// was explicitly provided. When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for management endpoints (/health, /ready, /metrics).
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// EncryptionProviders lists encryption providers by name; the first is used
	// for new message text and all of them can decrypt. Empty selects "dek,plain"
	// when EncryptionKey is set and "plain" otherwise.
	EncryptionProviders string
	// EncryptionKey is a comma-separated list of AES keys for the "dek" provider.
	// The first key is primary; subsequent keys are decryption-only.
	EncryptionKey             string
	EncryptionVaultTransitKey string
	// EncryptionKMSKeyID is the AWS KMS key ID or ARN used by the "kms" provider.
	EncryptionKMSKeyID string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	WebSocket WebSocketConfig

	// Per-user send rate limit (messages per second) and burst. Zero disables.
	SendRateLimit float64
	SendRateBurst int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                     ModeProd,
		DatastoreType:            "mongo",
		DBName:                   "chat_service",
		DatastoreMigrateAtStart:  true,
		CacheType:                "none",
		UserCacheTTL:             10 * time.Minute,
		InfinispanStartupTimeout: 30 * time.Second,
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		MaxBodySize:    4 * 1024 * 1024,
		DrainTimeout:   30,
		DBMaxOpenConns: 25,
		DBMaxIdleConns: 5,
		WebSocket: WebSocketConfig{
			SendBuffer: 256,
			PingPeriod: 54 * time.Second,
			PongWait:   60 * time.Second,
			WriteWait:  10 * time.Second,
			ReadLimit:  64 * 1024,
		},
		SendRateLimit: 10,
		SendRateBurst: 20,
	}
}

// Validate reports configuration combinations the server cannot start with.
func (c *Config) Validate() error {
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		return fmt.Errorf("websocket ping period (%s) must be shorter than pong wait (%s)", c.WebSocket.PingPeriod, c.WebSocket.PongWait)
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send buffer must be positive")
	}
	if c.SendRateLimit < 0 || c.SendRateBurst < 0 {
		return fmt.Errorf("send rate limit and burst must not be negative")
	}
	return nil
}
