// Package config provides configuration management for kiln using Viper
// for loading from files, environment variables and command-line flags.
//
// Settings come from .kiln.yml (or the file named by --config or
// KILN_CONFIG_FILE), KILN_<SECTION>_<OPTION> environment variables and
// flags bound by the CLI. Load applies defaults and validates the result.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/kiln/internal/component"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/patch"
)

type Config struct {
	Runtime RuntimeConfig `yaml:"runtime" mapstructure:"runtime"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Bridge  BridgeConfig  `yaml:"bridge" mapstructure:"bridge"`
	Watch   WatchConfig   `yaml:"watch" mapstructure:"watch"`
}

type RuntimeConfig struct {
	PatchCacheCapacity int           `yaml:"patch_cache_capacity" mapstructure:"patch_cache_capacity"`
	FrameInterval      time.Duration `yaml:"frame_interval" mapstructure:"frame_interval"`
	IdleDelay          time.Duration `yaml:"idle_delay" mapstructure:"idle_delay"`
	DiagnosticsLimit   int           `yaml:"diagnostics_limit" mapstructure:"diagnostics_limit"`
	GlobalStyles       string        `yaml:"global_styles" mapstructure:"global_styles"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	// File, when set, also receives every record as JSON.
	File string `yaml:"file" mapstructure:"file"`
}

type BridgeConfig struct {
	Host           string   `yaml:"host" mapstructure:"host"`
	Port           int      `yaml:"port" mapstructure:"port"`
	Path           string   `yaml:"path" mapstructure:"path"`
	Codec          string   `yaml:"codec" mapstructure:"codec"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
	// Paths are extra directories whose changes trigger a reload.
	Paths []string `yaml:"paths" mapstructure:"paths"`
}

// Codecs accepted by the bridge.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// EnvPrefix prefixes every environment override, as in KILN_BRIDGE_PORT.
const EnvPrefix = "KILN"

// Keys lists every configuration key. Viper only consults the environment
// during Unmarshal for keys it already knows, so BindEnv binds them all.
var Keys = []string{
	"runtime.patch_cache_capacity",
	"runtime.frame_interval",
	"runtime.idle_delay",
	"runtime.diagnostics_limit",
	"runtime.global_styles",
	"logging.level",
	"logging.format",
	"logging.file",
	"bridge.host",
	"bridge.port",
	"bridge.path",
	"bridge.codec",
	"bridge.allowed_origins",
	"watch.debounce",
	"watch.paths",
}

// BindEnv enables KILN_ environment overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range Keys {
		_ = v.BindEnv(key)
	}
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, applies defaults and validates
// it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, kerrors.NewConfigError("cannot decode configuration").WithCause(err)
	}

	// Viper does not split comma separated env values into slices.
	if v.IsSet("bridge.allowed_origins") && len(config.Bridge.AllowedOrigins) == 0 {
		config.Bridge.AllowedOrigins = v.GetStringSlice("bridge.allowed_origins")
	}
	if v.IsSet("watch.paths") && len(config.Watch.Paths) == 0 {
		config.Watch.Paths = v.GetStringSlice("watch.paths")
	}

	if !v.IsSet("runtime.patch_cache_capacity") {
		config.Runtime.PatchCacheCapacity = patch.DefaultCapacity
	}
	if config.Runtime.FrameInterval == 0 {
		config.Runtime.FrameInterval = 16 * time.Millisecond
	}
	if config.Runtime.IdleDelay == 0 {
		config.Runtime.IdleDelay = time.Millisecond
	}
	if config.Runtime.DiagnosticsLimit == 0 {
		config.Runtime.DiagnosticsLimit = 100
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}

	if config.Bridge.Host == "" {
		config.Bridge.Host = "localhost"
	}
	if !v.IsSet("bridge.port") {
		config.Bridge.Port = 8080
	}
	if config.Bridge.Path == "" {
		config.Bridge.Path = "/ws"
	}
	if config.Bridge.Codec == "" {
		config.Bridge.Codec = CodecJSON
	}

	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = 100 * time.Millisecond
	}

	if result := Validate(&config); result.HasErrors() {
		first := result.Errors[0]
		return nil, kerrors.NewConfigError(fmt.Sprintf("invalid configuration: %s", first.Error())).
			WithContext("field", first.Field).
			WithContext("value", first.Value)
	}

	return &config, nil
}

// RuntimeOptions converts the runtime section into component options.
func (c *Config) RuntimeOptions(logger logging.Logger) component.Options {
	return component.Options{
		PatchCacheCapacity: c.Runtime.PatchCacheCapacity,
		FrameInterval:      c.Runtime.FrameInterval,
		IdleDelay:          c.Runtime.IdleDelay,
		DiagnosticsLimit:   c.Runtime.DiagnosticsLimit,
		GlobalStyles:       c.Runtime.GlobalStyles,
		Logger:             logger,
	}
}

// Logger builds the logger described by the logging section. The log file
// stays open for the life of the process.
func (c *Config) Logger() (logging.Logger, error) {
	level := logging.LevelFromString(c.Logging.Level)
	console := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: c.Logging.Format,
		Output: os.Stderr,
	})
	if c.Logging.File == "" {
		return console, nil
	}

	f, err := os.OpenFile(c.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, kerrors.NewIOError(kerrors.ErrCodeFileAccess, "cannot open log file", err).
			WithContext("path", c.Logging.File)
	}
	file := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: "json",
		Output: f,
	})
	return logging.NewMultiLogger(console, file), nil
}

// Address returns the bridge listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Bridge.Host, c.Bridge.Port)
}
