package config

import (
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/conneroisu/trattoria/internal/logging"
	"github.com/conneroisu/trattoria/internal/validation"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}
	write("Validation errors", vr.Errors)
	write("Validation warnings", vr.Warnings)

	return builder.String()
}

func (vr *ValidationResult) fail(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) warn(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfigDetails(&config.Server, result)
	validateStorageConfigDetails(&config.Storage, result)
	validateTenantConfigDetails(&config.Tenant, result)
	validateLiveConfigDetails(&config.Live, result)
	validateSeedConfigDetails(&config.Seed, result)
	validateLogConfigDetails(&config.Log, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.fail("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access",
			"Port 0 allows the system to assign an available port")
	} else if config.Port > 0 && config.Port < 1024 {
		result.warn("server.port", config.Port, "port below 1024 requires elevated privileges")
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.fail("server.host", config.Host, err.Error(),
				"Use 'localhost' for local development",
				"Use '0.0.0.0' to bind to all interfaces")
		}
	}

	for _, origin := range config.AllowedOrigins {
		if err := validation.ValidateOrigin(origin); err != nil {
			result.fail("server.allowed_origins", origin, err.Error(),
				"Origins look like https://trattoria.example with no path")
		}
	}

	validEnvs := []string{"development", "production", "testing"}
	if config.Environment != "" && !slices.Contains(validEnvs, config.Environment) {
		result.warn("server.environment", config.Environment, "unknown environment type",
			"Use one of: "+strings.Join(validEnvs, ", "))
	}

	if config.ReadTimeout < 0 || config.WriteTimeout < 0 {
		result.fail("server.read_timeout", config.ReadTimeout, "timeouts cannot be negative")
	}
}

func validateStorageConfigDetails(config *StorageConfig, result *ValidationResult) {
	switch config.Driver {
	case DriverMemory:
		result.warn("storage.driver", config.Driver, "memory storage loses every edit on restart")
	case DriverSQLite:
		if config.Path != ":memory:" {
			if err := validation.ValidatePath(config.Path); err != nil {
				result.fail("storage.path", config.Path, err.Error(),
					"Use a relative path such as .trattoria/site.db")
			}
		}
	default:
		result.fail("storage.driver", config.Driver, fmt.Sprintf("unknown storage driver %q", config.Driver),
			"Available drivers: "+DriverSQLite+", "+DriverMemory)
	}

	if config.Timeout < 0 {
		result.fail("storage.timeout", config.Timeout, "timeout cannot be negative")
	}

	b := config.Breaker
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		result.fail("storage.breaker.failure_ratio", b.FailureRatio, "failure ratio must be in (0, 1]")
	}
	if b.MaxRequests == 0 {
		result.fail("storage.breaker.max_requests", b.MaxRequests, "at least one probe request is required")
	}
	if b.Timeout <= 0 {
		result.fail("storage.breaker.timeout", b.Timeout, "open-state timeout must be positive")
	}
	if b.Interval < 0 {
		result.fail("storage.breaker.interval", b.Interval, "interval cannot be negative")
	}
}

func validateTenantConfigDetails(config *TenantConfig, result *ValidationResult) {
	if strings.TrimSpace(config.SiteName) == "" {
		result.fail("tenant.site_name", config.SiteName, "site name is required",
			"Set tenant.site_name or TRATTORIA_TENANT_SITE_NAME")
	}
	if config.Locale == "" {
		result.warn("tenant.locale", config.Locale, "no locale set; renderers fall back to English")
	}
}

func validateLiveConfigDetails(config *LiveConfig, result *ValidationResult) {
	if !config.Enabled {
		return
	}
	if config.BufferSize <= 0 {
		result.fail("live.buffer_size", config.BufferSize, "buffer size must be positive")
	}
	if config.ConnectionsPerMinute <= 0 {
		result.fail("live.connections_per_minute", config.ConnectionsPerMinute, "connection rate must be positive")
	}
	if config.Burst <= 0 {
		result.fail("live.burst", config.Burst, "burst must be positive")
	}
}

func validateSeedConfigDetails(config *SeedConfig, result *ValidationResult) {
	if config.Path == "" {
		if config.Watch {
			result.warn("seed.watch", config.Watch, "seed.watch has no effect without seed.path")
		}
		return
	}
	if err := validation.ValidatePath(config.Path); err != nil {
		result.fail("seed.path", config.Path, err.Error())
	} else if ext := filepath.Ext(config.Path); ext != ".yml" && ext != ".yaml" {
		result.warn("seed.path", config.Path, "seed file does not have a .yml or .yaml extension")
	}
	if config.Watch && config.Debounce <= 0 {
		result.fail("seed.debounce", config.Debounce, "debounce must be positive when watching")
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.fail("log.level", config.Level, err.Error(), "Use debug, info, warn or error")
	}
	if config.Format != "text" && config.Format != "json" {
		result.fail("log.format", config.Format, fmt.Sprintf("unknown log format %q", config.Format),
			"Use text or json")
	}
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}
	return nil
}
