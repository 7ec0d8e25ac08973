package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	siteerrors "github.com/conneroisu/trattoria/internal/errors"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, ".trattoria/site.db", cfg.Storage.Path)
	assert.Equal(t, 2*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, 0.6, cfg.Storage.Breaker.FailureRatio)
	assert.Equal(t, "Trattoria", cfg.Tenant.SiteName)
	assert.True(t, cfg.Live.Enabled)
	assert.Equal(t, 64, cfg.Live.BufferSize)
	assert.Equal(t, 300*time.Millisecond, cfg.Seed.Debounce)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "localhost:8080", cfg.Address())
	assert.False(t, cfg.IsProduction())
}

func TestLoadFrom_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".trattoria.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 0.0.0.0
  port: 3000
  allowed_origins:
    - https://trattoria.example
  environment: production
storage:
  driver: memory
  breaker:
    min_requests: 10
tenant:
  site_name: Trattoria Nonna
  branch: centro
  phone: "+39 06 555 0101"
live:
  connections_per_minute: 5
seed:
  path: seed.yml
  watch: true
  debounce: 1s
log:
  level: DEBUG
  format: json
`), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3000", cfg.Address())
	assert.Equal(t, []string{"https://trattoria.example"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, uint32(10), cfg.Storage.Breaker.MinRequests)
	assert.Equal(t, uint32(2), cfg.Storage.Breaker.MaxRequests, "unset keys keep defaults")
	assert.Equal(t, 5, cfg.Live.ConnectionsPerMinute)
	assert.Equal(t, time.Second, cfg.Seed.Debounce)
	assert.Equal(t, "debug", cfg.Log.Level)

	tenant := cfg.TenantContext()
	assert.Equal(t, "Trattoria Nonna", tenant.SiteName)
	assert.Equal(t, "centro", tenant.Branch)
	assert.Equal(t, "+39 06 555 0101", tenant.Phone)

	guard := cfg.GuardConfig()
	assert.Equal(t, uint32(10), guard.MinRequests)
	assert.Equal(t, 2*time.Second, guard.CallTimeout)
}

func TestLoadFrom_Environment(t *testing.T) {
	t.Setenv("TRATTORIA_SERVER_PORT", "9090")
	t.Setenv("TRATTORIA_TENANT_SITE_NAME", "Da Mario")
	t.Setenv("TRATTORIA_SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRATTORIA_STORAGE_TIMEOUT", "500ms")

	v := viper.New()
	BindEnv(v)

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "Da Mario", cfg.Tenant.SiteName)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.Storage.Timeout)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
		field string
	}{
		{"port out of range", "server.port", 70000, "server.port"},
		{"dangerous host", "server.host", "localhost;rm", "server.host"},
		{"origin with path", "server.allowed_origins", []string{"https://a.example/admin"}, "server.allowed_origins"},
		{"unknown driver", "storage.driver", "postgres", "storage.driver"},
		{"path traversal", "storage.path", "../../etc/site.db", "storage.path"},
		{"ratio above one", "storage.breaker.failure_ratio", 1.5, "storage.breaker.failure_ratio"},
		{"empty site name", "tenant.site_name", "  ", "tenant.site_name"},
		{"zero live buffer", "live.buffer_size", 0, "live.buffer_size"},
		{"seed traversal", "seed.path", "../seed.yml", "seed.path"},
		{"unknown level", "log.level", "verbose", "log.level"},
		{"unknown format", "log.format", "xml", "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)

			_, err := LoadFrom(v)
			require.Error(t, err)

			var se *siteerrors.SiteError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, siteerrors.ErrorTypeConfig, se.Type)
			assert.Equal(t, tt.field, se.Context["field"])
		})
	}
}

func TestLoadFrom_DecodeError(t *testing.T) {
	v := viper.New()
	v.Set("server.port", "not-a-port")

	_, err := LoadFrom(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode configuration")
}

func TestValidateConfigWithDetails_Warnings(t *testing.T) {
	v := viper.New()
	v.Set("storage.driver", "memory")
	v.Set("server.environment", "staging")
	v.Set("seed.watch", true)
	cfg, err := LoadFrom(v)
	require.NoError(t, err, "warnings do not fail loading")

	result := ValidateConfigWithDetails(cfg)
	assert.True(t, result.Valid)
	assert.True(t, result.HasWarnings())

	fields := make([]string, len(result.Warnings))
	for i, w := range result.Warnings {
		fields[i] = w.Field
	}
	assert.ElementsMatch(t, []string{"storage.driver", "server.environment", "seed.watch"}, fields)
	assert.True(t, strings.Contains(result.String(), "Validation warnings"))
}

func TestValidateHostname(t *testing.T) {
	for _, host := range []string{"localhost", "0.0.0.0", "::1", "trattoria.example", "web-1"} {
		assert.NoError(t, validateHostname(host), host)
	}
	for _, host := range []string{"local host", "-bad", "a;b", "$(id)"} {
		assert.Error(t, validateHostname(host), host)
	}
}
