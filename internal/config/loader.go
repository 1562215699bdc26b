// File: internal/config/loader.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from an optional yaml file and the
// environment. Environment variables use the AUTH_ prefix with dots replaced
// by underscores (AUTH_PROVIDER_BASE_URL, AUTH_JWKS_CACHE_TTL, ...).
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	env := strings.ToLower(os.Getenv("APP_ENV"))
	if env == "" {
		env = "development"
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/auth-gateway")
	}

	v.SetEnvPrefix("AUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine; the environment alone may be the whole config.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Extra realms can also arrive as AUTH_REALMS json or REALM_<n>_* variables.
	extra, err := realmsFromEnv()
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		cfg.Provider.Realms = extra
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Keys without a natural default still need registering so AutomaticEnv
	// picks them up during Unmarshal.
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.realm", "")
	v.SetDefault("provider.issuer", "")
	v.SetDefault("provider.audience", "")
	v.SetDefault("provider.client_id", "")
	v.SetDefault("provider.client_secret", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("token.allowed_algorithms", []string{"RS256"})
	v.SetDefault("token.clock_skew", "30s")
	v.SetDefault("token.service_account_prefix", "service-account-")

	v.SetDefault("jwks.cache_ttl", "1h")
	v.SetDefault("jwks.fetch_timeout", "10s")
	v.SetDefault("jwks.max_staleness", "0")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.max_attempts", 5)
	v.SetDefault("rate_limit.skip_successful", false)
	v.SetDefault("rate_limit.store", "memory")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.include_claims", false)
	v.SetDefault("audit.kafka.enabled", false)
	v.SetDefault("audit.kafka.topic", "auth.audit")

	v.SetDefault("client.request_timeout", "15s")
	v.SetDefault("client.expiry_buffer", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
}
