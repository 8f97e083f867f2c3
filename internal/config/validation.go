package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
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

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// Validate checks every section and collects errors and warnings.
func Validate(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateRuntimeConfig(&config.Runtime, result)
	validateLoggingConfig(&config.Logging, result)
	validateBridgeConfig(&config.Bridge, result)
	validateWatchConfig(&config.Watch, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateRuntimeConfig(config *RuntimeConfig, result *ValidationResult) {
	if config.PatchCacheCapacity <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "runtime.patch_cache_capacity",
			Value:   config.PatchCacheCapacity,
			Message: "patch cache capacity must be positive",
			Suggestions: []string{
				"The default capacity is 100 entries",
			},
		})
	}
	if config.FrameInterval < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "runtime.frame_interval",
			Value:   config.FrameInterval,
			Message: "frame interval cannot be negative",
		})
	}
	if config.IdleDelay < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "runtime.idle_delay",
			Value:   config.IdleDelay,
			Message: "idle delay cannot be negative",
		})
	}
	if config.DiagnosticsLimit < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "runtime.diagnostics_limit",
			Value:   config.DiagnosticsLimit,
			Message: "diagnostics limit cannot be negative",
		})
	}
}

func validateLoggingConfig(config *LoggingConfig, result *ValidationResult) {
	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !contains(validLevels, strings.ToLower(config.Level)) {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "logging.level",
			Value:   config.Level,
			Message: "unknown log level, falling back to info",
			Suggestions: []string{
				"Available levels: " + strings.Join(validLevels[:4], ", "),
			},
		})
	}
	if config.Format != "json" && config.Format != "text" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "logging.format",
			Value:   config.Format,
			Message: fmt.Sprintf("unknown log format '%s'", config.Format),
			Suggestions: []string{
				"Use 'text' for terminals and 'json' for log collectors",
			},
		})
	}
}

func validateBridgeConfig(config *BridgeConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "bridge.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				"Use a port between 1024-65535 for non-privileged access",
				"Port 0 allows system to assign an available port",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "bridge.port",
			Value:   config.Port,
			Message: "port below 1024 requires elevated privileges",
		})
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "bridge.host",
				Value:   config.Host,
				Message: err.Error(),
				Suggestions: []string{
					"Use 'localhost' for local development",
					"Use '0.0.0.0' to bind to all interfaces",
				},
			})
		}
	}

	if !strings.HasPrefix(config.Path, "/") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "bridge.path",
			Value:   config.Path,
			Message: "path must start with '/'",
		})
	}

	if config.Codec != CodecJSON && config.Codec != CodecMsgpack {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "bridge.codec",
			Value:   config.Codec,
			Message: fmt.Sprintf("unknown codec '%s'", config.Codec),
			Suggestions: []string{
				"Use 'json' for text frames or 'msgpack' for binary frames",
			},
		})
	}

	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   "bridge.allowed_origins",
				Value:   origin,
				Message: "wildcard origin accepts connections from any page",
			})
			continue
		}
		if !validOrigin(origin) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "bridge.allowed_origins",
				Value:   origin,
				Message: "origin must be a URL such as http://localhost:3000 or a host pattern",
			})
		}
	}
}

func validateWatchConfig(config *WatchConfig, result *ValidationResult) {
	if config.Debounce < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "watch.debounce",
			Value:   config.Debounce,
			Message: "debounce cannot be negative",
		})
	}
	for _, path := range config.Paths {
		if !pathExists(path) {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   "watch.paths",
				Value:   path,
				Message: fmt.Sprintf("path '%s' does not exist", path),
			})
		}
	}
}

// validOrigin accepts a URL with a host or a bare host pattern such as
// "*.example.com" or "localhost:3000".
func validOrigin(origin string) bool {
	if strings.Contains(origin, "://") {
		u, err := url.Parse(origin)
		return err == nil && u.Host != ""
	}
	return origin != "" && !strings.ContainsAny(origin, "/ \t")
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
