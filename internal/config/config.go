// Package config provides configuration management for the trattoria site
// using Viper for loading from files, environment variables, and flags.
//
// Precedence, highest first: command-line flags, the file named by
// TRATTORIA_CONFIG_FILE or --config, TRATTORIA_* environment variables, then
// .trattoria.yml in the working directory. Defaults fill whatever is left.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/trattoria/internal/content"
	siteerrors "github.com/conneroisu/trattoria/internal/errors"
	"github.com/conneroisu/trattoria/internal/storage"
)

// EnvPrefix is the prefix of environment overrides, e.g. TRATTORIA_SERVER_PORT.
const EnvPrefix = "TRATTORIA"

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Tenant  TenantConfig  `mapstructure:"tenant" yaml:"tenant"`
	Live    LiveConfig    `mapstructure:"live" yaml:"live"`
	Seed    SeedConfig    `mapstructure:"seed" yaml:"seed"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	Environment    string        `mapstructure:"environment" yaml:"environment"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

type StorageConfig struct {
	Driver  string        `mapstructure:"driver" yaml:"driver"`
	Path    string        `mapstructure:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Breaker BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests" yaml:"max_requests"`
	Interval     time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests" yaml:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio" yaml:"failure_ratio"`
}

// TenantConfig is the site identity handed to every renderer.
type TenantConfig struct {
	SiteName string `mapstructure:"site_name" yaml:"site_name"`
	Branch   string `mapstructure:"branch" yaml:"branch"`
	Locale   string `mapstructure:"locale" yaml:"locale"`
	Phone    string `mapstructure:"phone" yaml:"phone"`
	Address  string `mapstructure:"address" yaml:"address"`
}

type LiveConfig struct {
	Enabled              bool `mapstructure:"enabled" yaml:"enabled"`
	BufferSize           int  `mapstructure:"buffer_size" yaml:"buffer_size"`
	ConnectionsPerMinute int  `mapstructure:"connections_per_minute" yaml:"connections_per_minute"`
	Burst                int  `mapstructure:"burst" yaml:"burst"`
}

type SeedConfig struct {
	Path     string        `mapstructure:"path" yaml:"path"`
	Watch    bool          `mapstructure:"watch" yaml:"watch"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// SetDefaults registers every key with its default so environment
// overrides resolve for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)

	guard := storage.DefaultGuardConfig()
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.path", ".trattoria/site.db")
	v.SetDefault("storage.timeout", guard.CallTimeout)
	v.SetDefault("storage.breaker.max_requests", guard.MaxProbes)
	v.SetDefault("storage.breaker.interval", guard.Interval)
	v.SetDefault("storage.breaker.timeout", guard.OpenTimeout)
	v.SetDefault("storage.breaker.min_requests", guard.MinRequests)
	v.SetDefault("storage.breaker.failure_ratio", guard.FailureRatio)

	v.SetDefault("tenant.site_name", "Trattoria")
	v.SetDefault("tenant.branch", "")
	v.SetDefault("tenant.locale", "en")
	v.SetDefault("tenant.phone", "")
	v.SetDefault("tenant.address", "")

	v.SetDefault("live.enabled", true)
	v.SetDefault("live.buffer_size", 64)
	v.SetDefault("live.connections_per_minute", 30)
	v.SetDefault("live.burst", 10)

	v.SetDefault("seed.path", "")
	v.SetDefault("seed.watch", false)
	v.SetDefault("seed.debounce", 300*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// BindEnv makes TRATTORIA_SECTION_KEY override section.key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, siteerrors.NewConfigError("CONFIG_DECODE", fmt.Sprintf("decode configuration: %v", err))
	}

	// Environment values arrive comma separated.
	config.Server.AllowedOrigins = splitList(config.Server.AllowedOrigins)
	config.Log.Level = strings.ToLower(strings.TrimSpace(config.Log.Level))
	config.Storage.Driver = strings.ToLower(strings.TrimSpace(config.Storage.Driver))

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// validateConfig rejects a configuration with any validation error.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if !result.HasErrors() {
		return nil
	}
	first := result.Errors[0]
	return siteerrors.NewConfigError("CONFIG_INVALID", "invalid configuration: "+first.Error()).
		WithContext("field", first.Field).
		WithContext("errors", len(result.Errors))
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// TenantContext converts the tenant section into the renderer context.
func (c *Config) TenantContext() content.TenantContext {
	return content.TenantContext{
		SiteName: c.Tenant.SiteName,
		Branch:   c.Tenant.Branch,
		Locale:   c.Tenant.Locale,
		Phone:    c.Tenant.Phone,
		Address:  c.Tenant.Address,
	}
}

// GuardConfig converts the storage section into breaker settings.
func (c *Config) GuardConfig() storage.GuardConfig {
	cfg := storage.DefaultGuardConfig()
	cfg.CallTimeout = c.Storage.Timeout
	cfg.MaxProbes = c.Storage.Breaker.MaxRequests
	cfg.Interval = c.Storage.Breaker.Interval
	cfg.OpenTimeout = c.Storage.Breaker.Timeout
	cfg.MinRequests = c.Storage.Breaker.MinRequests
	cfg.FailureRatio = c.Storage.Breaker.FailureRatio
	return cfg
}

func splitList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		for _, p := range strings.Split(item, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
