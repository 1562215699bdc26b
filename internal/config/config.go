// File: internal/config/config.go
package config

import (
	"time"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Token     TokenConfig     `mapstructure:"token"`
	JWKS      JWKSConfig      `mapstructure:"jwks"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Client    ClientConfig    `mapstructure:"client"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// ProviderConfig describes the identity provider: one base realm plus an
// arbitrary number of additional realms. Extra realms come either from the
// AUTH_REALMS JSON list or from indexed REALM_<n>_* variables; the loader
// normalizes both into one table (see realms.go).
type ProviderConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Realm        string        `mapstructure:"realm"`
	Issuer       string        `mapstructure:"issuer"`
	Audience     string        `mapstructure:"audience"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Realms       []RealmConfig `mapstructure:"realms"`
}

// TokenConfig holds validation tunables shared by all realms.
type TokenConfig struct {
	// AllowedAlgorithms is the signature algorithm allow-list. The header's
	// claimed algorithm is never trusted on its own.
	AllowedAlgorithms []string `mapstructure:"allowed_algorithms"`
	// ClockSkew is the tolerance applied to exp/nbf comparisons.
	ClockSkew time.Duration `mapstructure:"clock_skew"`
	// ServiceAccountPrefix marks a subject/username as a machine identity.
	// Provider-specific; Keycloak uses "service-account-<clientId>".
	ServiceAccountPrefix string `mapstructure:"service_account_prefix"`
}

type JWKSConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// MaxStaleness bounds how old a cached key set may be before a failed
	// refresh stops falling back to it. Zero keeps the fallback unbounded.
	MaxStaleness time.Duration `mapstructure:"max_staleness"`
}

type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Window         time.Duration `mapstructure:"window"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	SkipSuccessful bool          `mapstructure:"skip_successful"`
	// Store selects the counter backend: "memory" or "redis".
	Store string `mapstructure:"store"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaSinkConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// IncludeClaims opts raw token claims into audit events. Off by default:
	// claims may contain PII.
	IncludeClaims bool            `mapstructure:"include_claims"`
	Kafka         KafkaSinkConfig `mapstructure:"kafka"`
}

// ClientConfig tunes outbound service-account token acquisition.
type ClientConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// ExpiryBuffer is subtracted from a cached token's lifetime so it is
	// refreshed shortly before it actually expires.
	ExpiryBuffer time.Duration `mapstructure:"expiry_buffer"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
