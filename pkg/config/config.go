// Package config provides the gateway configuration, loaded from a YAML
// file with POLYSTORE_* environment overrides. Engine connection strings are
// environment-sourced (MONGO_URI and friends) with component overrides
// composed into a default URI when the full URI is not set.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	"github.com/ajitpratap0/polystore/pkg/errors"
)

// Config is the root gateway configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Encoding    string `mapstructure:"encoding"`
	Development bool   `mapstructure:"development"`
}

// RoutingConfig holds tenant resolution settings.
type RoutingConfig struct {
	// Policy is "static" or "mapping".
	Policy string `mapstructure:"policy"`
	// DefaultEngine is the engine used by the static policy.
	DefaultEngine string `mapstructure:"default_engine"`
	// DefaultTenant is the sentinel tenant for requests without a tenant
	// identity. Ignored when RequireTenant is set.
	DefaultTenant string `mapstructure:"default_tenant"`
	// RequireTenant disables the sentinel fallback: requests without a
	// tenant identity are rejected instead of merged into one tenant.
	RequireTenant bool `mapstructure:"require_tenant"`
	// RoutesFile is the tenant -> engine mapping consumed by the mapping
	// policy.
	RoutesFile string `mapstructure:"routes_file"`
}

// RegistryConfig holds connection registry settings.
type RegistryConfig struct {
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

// RateLimitConfig holds request rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// Load reads configuration from the given file (optional) and the
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("POLYSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")
	v.SetDefault("logging.development", false)

	v.SetDefault("routing.policy", "static")
	v.SetDefault("routing.default_engine", string(core.EngineMongoDB))
	v.SetDefault("routing.default_tenant", "default_tenant")
	v.SetDefault("routing.require_tenant", false)

	v.SetDefault("registry.connect_timeout", 10*time.Second)
	v.SetDefault("registry.connect_attempts", 3)
	v.SetDefault("registry.retry_delay", 250*time.Millisecond)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_second", 100.0)
	v.SetDefault("rate_limit.burst", 200)
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf(errors.ErrorTypeConfig, "invalid server port %d", c.Server.Port)
	}

	switch c.Routing.Policy {
	case "static":
		if c.Routing.DefaultEngine == "" {
			return errors.New(errors.ErrorTypeConfig, "static routing requires routing.default_engine")
		}
	case "mapping":
		if c.Routing.RoutesFile == "" {
			return errors.New(errors.ErrorTypeConfig, "mapping routing requires routing.routes_file")
		}
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown routing policy %q", c.Routing.Policy)
	}

	if !c.Routing.RequireTenant && c.Routing.DefaultTenant == "" {
		return errors.New(errors.ErrorTypeConfig,
			"routing.default_tenant must be set unless routing.require_tenant is enabled")
	}
	return nil
}

// SentinelTenant returns the tenant used for requests without a tenant
// identity, or "" when the fallback is disabled.
func (c *Config) SentinelTenant() string {
	if c.Routing.RequireTenant {
		return ""
	}
	return c.Routing.DefaultTenant
}

// EngineURIs composes the per-engine base connection strings from the
// environment. The full URI variable wins; otherwise the URI is assembled
// from host/port/user/password components.
func EngineURIs() map[core.EngineType]string {
	return map[core.EngineType]string{
		core.EngineMongoDB:  mongoURI(),
		core.EnginePostgres: postgresURI(),
		core.EngineRedis:    redisURI(),
	}
}

func mongoURI() string {
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		return uri
	}
	host := getenv("MONGO_HOST", "localhost")
	port := getenv("MONGO_PORT", "27017")
	if user := os.Getenv("MONGO_USER"); user != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%s", user, os.Getenv("MONGO_PASSWORD"), host, port)
	}
	return fmt.Sprintf("mongodb://%s:%s", host, port)
}

func postgresURI() string {
	if uri := os.Getenv("POSTGRES_URI"); uri != "" {
		return uri
	}
	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	user := getenv("POSTGRES_USER", "postgres")
	if password := os.Getenv("POSTGRES_PASSWORD"); password != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s", user, password, host, port)
	}
	return fmt.Sprintf("postgres://%s@%s:%s", user, host, port)
}

func redisURI() string {
	if uri := os.Getenv("REDIS_URI"); uri != "" {
		return uri
	}
	host := getenv("REDIS_HOST", "localhost")
	port := getenv("REDIS_PORT", "6379")
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		return fmt.Sprintf("redis://:%s@%s:%s/0", password, host, port)
	}
	return fmt.Sprintf("redis://%s:%s/0", host, port)
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
