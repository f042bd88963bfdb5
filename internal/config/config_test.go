package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfigYAML() string {
	return `
server:
  address: ":8080"
cache:
  type: memory
auth:
  issuer: carmarket
  accessSecret: access-secret
  refreshSecret: refresh-secret
  accessTTL: "60s"
  refreshTTL: "168h"
rateLimit:
  enabled: true
  tiers:
    short:
      window: "1s"
      max: 3
`
}

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(validConfigYAML()))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 60*time.Second, cfg.Auth.AccessTTL.Duration())
	assert.Equal(t, 168*time.Hour, cfg.Auth.RefreshTTL.Duration())
	assert.Equal(t, time.Second, cfg.RateLimit.Tiers["short"].Window.Duration())
	assert.Equal(t, 3, cfg.RateLimit.Tiers["short"].Max)

	// Defaults survive partial configs.
	assert.Equal(t, ":9090", cfg.GRPC.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_ACCESS_SECRET", "from-env")

	yaml := strings.Replace(validConfigYAML(),
		"accessSecret: access-secret",
		"accessSecret: ${TEST_ACCESS_SECRET}", 1)

	cfg, err := LoadFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.AccessSecret)
}

func TestLoadEnvSubstitutionDefault(t *testing.T) {
	t.Parallel()

	yaml := strings.Replace(validConfigYAML(),
		"accessSecret: access-secret",
		"accessSecret: ${UNSET_SECRET_VAR:-fallback-secret}", 1)

	cfg, err := LoadFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	assert.Equal(t, "fallback-secret", cfg.Auth.AccessSecret)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing server address",
			mutate:  func(c *Config) { c.Server.Address = "" },
			wantErr: "server address",
		},
		{
			name:    "missing access secret",
			mutate:  func(c *Config) { c.Auth.AccessSecret = "" },
			wantErr: "access secret",
		},
		{
			name:    "identical secrets",
			mutate:  func(c *Config) { c.Auth.RefreshSecret = c.Auth.AccessSecret },
			wantErr: "must differ",
		},
		{
			name:    "refresh TTL not exceeding access TTL",
			mutate:  func(c *Config) { c.Auth.RefreshTTL = c.Auth.AccessTTL },
			wantErr: "refresh TTL",
		},
		{
			name:    "unknown cache type",
			mutate:  func(c *Config) { c.Cache.Type = "memcached" },
			wantErr: "cache type",
		},
		{
			name:    "redis without URL",
			mutate:  func(c *Config) { c.Cache.Type = "redis"; c.Cache.Redis = nil },
			wantErr: "redis URL",
		},
		{
			name: "zero tier window",
			mutate: func(c *Config) {
				c.RateLimit.Tiers = map[string]TierConfig{"short": {Max: 3}}
			},
			wantErr: "window",
		},
		{
			name: "zero tier max",
			mutate: func(c *Config) {
				c.RateLimit.Tiers = map[string]TierConfig{"short": {Window: Duration(time.Second)}}
			},
			wantErr: "max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			cfg.Auth.AccessSecret = "a-secret"
			cfg.Auth.RefreshSecret = "r-secret"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDurationRoundTrip(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"90s"`)))
	assert.Equal(t, 90*time.Second, d.Duration())

	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))

	require.NoError(t, d.UnmarshalJSON([]byte(`null`)))
	assert.Zero(t, d.Duration())
}
