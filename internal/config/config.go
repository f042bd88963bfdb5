package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/motorland/carmarket/internal/users"
)

// Config is the root configuration for the backend.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	GRPC          GRPCConfig          `yaml:"grpc"`
	Cache         CacheConfig         `yaml:"cache"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimit     RateLimitConfig     `yaml:"rateLimit"`
	Observability ObservabilityConfig `yaml:"observability"`
	Audit         AuditConfig         `yaml:"audit"`

	// Users seeds the in-memory user directory at startup.
	Users []users.SeedAccount `yaml:"users"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Address is the listen address, e.g. ":8080".
	Address string `yaml:"address"`

	// ReadTimeout bounds reading the full request including the body.
	ReadTimeout Duration `yaml:"readTimeout"`

	// WriteTimeout bounds writing the response.
	WriteTimeout Duration `yaml:"writeTimeout"`

	// ShutdownTimeout bounds graceful shutdown draining.
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Enabled controls whether the gRPC transport is started.
	Enabled bool `yaml:"enabled"`

	// Address is the listen address, e.g. ":9090".
	Address string `yaml:"address"`

	// MaxRecvMsgSize is the maximum inbound message size in bytes.
	MaxRecvMsgSize int `yaml:"maxRecvMsgSize"`

	// ListenerRPS is the per-listener token bucket rate applied before
	// any per-actor limiting. Zero disables the listener guard.
	ListenerRPS int `yaml:"listenerRps"`

	// ListenerBurst is the token bucket burst size.
	ListenerBurst int `yaml:"listenerBurst"`
}

// CacheConfig holds cache backend configuration.
type CacheConfig struct {
	// Type is the cache backend: "redis" or "memory".
	Type string `yaml:"type"`

	// Redis holds redis-specific settings. Required when Type is "redis".
	Redis *RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// connection URL.
	URL string `yaml:"url"`

	PoolSize       int      `yaml:"poolSize"`
	ConnectTimeout Duration `yaml:"connectTimeout"`
	ReadTimeout    Duration `yaml:"readTimeout"`
	WriteTimeout   Duration `yaml:"writeTimeout"`
}

// AuthConfig holds token issuance configuration.
type AuthConfig struct {
	// Issuer is the "iss" claim stamped into every token.
	Issuer string `yaml:"issuer"`

	// AccessSecret signs access tokens. Distinct from RefreshSecret so a
	// leaked access secret cannot mint refresh tokens.
	AccessSecret string `yaml:"accessSecret"`

	// RefreshSecret signs refresh tokens.
	RefreshSecret string `yaml:"refreshSecret"`

	// AccessTTL is the access token lifetime.
	AccessTTL Duration `yaml:"accessTTL"`

	// RefreshTTL is the refresh token and session record lifetime.
	RefreshTTL Duration `yaml:"refreshTTL"`
}

// RateLimitConfig holds rate limiter tier configuration.
type RateLimitConfig struct {
	// Enabled controls whether per-actor rate limiting is applied.
	Enabled bool `yaml:"enabled"`

	// Tiers overrides the built-in tier definitions. Keys are tier names
	// (short, medium, long).
	Tiers map[string]TierConfig `yaml:"tiers"`
}

// TierConfig defines one fixed-window tier.
type TierConfig struct {
	// Window is the fixed window length.
	Window Duration `yaml:"window"`

	// Max is the maximum number of requests per actor per window.
	Max int `yaml:"max"`
}

// ObservabilityConfig holds logging, metrics, and tracing configuration.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	MetricsEnabled bool `yaml:"metricsEnabled"`

	TracingEnabled bool    `yaml:"tracingEnabled"`
	OTLPEndpoint   string  `yaml:"otlpEndpoint"`
	SamplingRate   float64 `yaml:"samplingRate"`
}

// AuditConfig holds audit logging configuration.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// Output is "stdout", "stderr", or a file path.
	Output string `yaml:"output"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		GRPC: GRPCConfig{
			Enabled:        true,
			Address:        ":9090",
			MaxRecvMsgSize: 4 * 1024 * 1024,
			ListenerRPS:    1000,
			ListenerBurst:  100,
		},
		Cache: CacheConfig{
			Type: "memory",
		},
		Auth: AuthConfig{
			Issuer:     "carmarket",
			AccessTTL:  Duration(60 * time.Second),
			RefreshTTL: Duration(7 * 24 * time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			MetricsEnabled: true,
			SamplingRate:   1.0,
		},
		Audit: AuditConfig{
			Enabled: true,
			Output:  "stdout",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server address is required")
	}
	if c.GRPC.Enabled && c.GRPC.Address == "" {
		return errors.New("grpc address is required when grpc is enabled")
	}

	switch c.Cache.Type {
	case "memory":
	case "redis":
		if c.Cache.Redis == nil || c.Cache.Redis.URL == "" {
			return errors.New("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("unknown cache type %q", c.Cache.Type)
	}

	if c.Auth.AccessSecret == "" {
		return errors.New("auth access secret is required")
	}
	if c.Auth.RefreshSecret == "" {
		return errors.New("auth refresh secret is required")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}
	if c.Auth.AccessTTL.Duration() <= 0 {
		return errors.New("auth access TTL must be positive")
	}
	if c.Auth.RefreshTTL.Duration() <= c.Auth.AccessTTL.Duration() {
		return errors.New("auth refresh TTL must exceed access TTL")
	}

	for i, u := range c.Users {
		if u.ID == "" || u.Username == "" {
			return fmt.Errorf("user %d: id and username are required", i)
		}
	}

	for name, tier := range c.RateLimit.Tiers {
		if tier.Window.Duration() <= 0 {
			return fmt.Errorf("rate limit tier %q window must be positive", name)
		}
		if tier.Max <= 0 {
			return fmt.Errorf("rate limit tier %q max must be positive", name)
		}
	}

	return nil
}
