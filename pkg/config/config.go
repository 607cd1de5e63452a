// Package config loads and validates the csyncd configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (CSYNC_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/fioncat/csync/internal/bytesize"
	"github.com/fioncat/csync/pkg/api"
	"github.com/fioncat/csync/pkg/events"
	"github.com/fioncat/csync/pkg/store"
)

// Config is the csyncd configuration.
//
// Paths not set explicitly are derived from DataDir, so a fresh
// install only has to pick a data directory (or accept the XDG
// default) to get a working server.
type Config struct {
	// DataDir is the state root. The database and the token signing
	// key live under it unless configured elsewhere.
	// Default: $XDG_DATA_HOME/csync
	DataDir string `mapstructure:"data_dir" yaml:"data_dir" json:"data_dir"`

	// ShutdownTimeout is the maximum time to wait for graceful
	// shutdown. It is inherited by the API and events listeners when
	// they have no timeout of their own.
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`

	// Database configures the SQLite store.
	Database store.Config `mapstructure:"database" yaml:"database" json:"database"`

	// API configures the REST API server.
	API api.APIConfig `mapstructure:"api" yaml:"api" json:"api"`

	// Events configures the TCP event stream listener.
	Events events.ServerConfig `mapstructure:"events" yaml:"events" json:"events"`

	// Auth configures bearer tokens and password hashing.
	Auth AuthConfig `mapstructure:"auth" yaml:"auth" json:"auth"`

	// Admin configures the reserved admin identity.
	Admin AdminConfig `mapstructure:"admin" yaml:"admin" json:"admin"`

	// Recycle configures blob expiry.
	Recycle RecycleConfig `mapstructure:"recycle" yaml:"recycle" json:"recycle"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry" json:"telemetry"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level" json:"level"`

	// Format specifies the log output format.
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format" json:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output" json:"output"`
}

// AuthConfig configures bearer tokens and password hashing.
type AuthConfig struct {
	// KeyFile is the RSA private key used to sign bearer tokens.
	// Generated on first start when missing.
	// Default: <data_dir>/token_rsa.pem
	KeyFile string `mapstructure:"key_file" yaml:"key_file" json:"key_file"`

	// TokenTTL is how long issued bearer tokens stay valid.
	// Default: 24h
	TokenTTL time.Duration `mapstructure:"token_ttl" validate:"omitempty,gt=0" yaml:"token_ttl" json:"token_ttl"`

	// SaltLength is the length of generated password salts.
	// Default: 30
	SaltLength int `mapstructure:"salt_length" validate:"omitempty,min=8,max=64" yaml:"salt_length" json:"salt_length"`
}

// AdminConfig configures the reserved admin identity.
//
// Admin has no user row: it authenticates against Password and only
// from loopback peers. An empty password disables admin entirely.
type AdminConfig struct {
	// Password is the admin password. Empty disables admin access.
	Password string `mapstructure:"password" yaml:"password,omitempty" json:"password,omitempty"`
}

// RecycleConfig configures blob expiry.
type RecycleConfig struct {
	// TTL is how long an unpinned blob lives after its last update.
	// Pinned blobs never expire.
	// Default: 24h
	TTL time.Duration `mapstructure:"ttl" validate:"omitempty,gt=0" yaml:"ttl" json:"ttl"`

	// Interval is the sweep period. Zero sweeps once per TTL.
	Interval time.Duration `mapstructure:"interval" yaml:"interval,omitempty" json:"interval,omitempty"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false the endpoint is not exposed.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Host is the address the metrics server binds to. The default
	// keeps operational data off external interfaces.
	// Default: 127.0.0.1
	Host string `mapstructure:"host" yaml:"host" json:"host"`

	// Port is the HTTP port for the metrics endpoint.
	// Default: 7705
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port" json:"port"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection.
	// The generated sample config sets it to true for local collectors.
	Insecure bool `mapstructure:"insecure" yaml:"insecure" json:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate" json:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling" json:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL).
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`

	// ProfileTypes specifies which profile types to collect.
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects,
	// inuse_space, goroutines, mutex_count, mutex_duration,
	// block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types" json:"profile_types"`
}

// Load loads configuration from file, environment, and defaults.
//
// A missing config file is not an error; the defaults describe a
// working single-node server.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with operator-friendly error messages.
// It checks that the config file exists and points at `csyncd init`
// when it does not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  csyncd init\n\n"+
				"Or specify a custom config file:\n"+
				"  csyncd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  csyncd init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupViper configures environment variables and the config file
// search path.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the CSYNC_ prefix and underscores.
	// Example: CSYNC_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("CSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/csync/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is reported as (false, nil) so the caller can fall back to
// defaults.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// An explicitly named file that does not exist surfaces as a
		// plain path error.
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the combined decode hook for all custom
// types: ByteSize and time.Duration from their string forms.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to
// bytesize.ByteSize, so config files can say "10MiB" or "500KB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64.
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration, so config
// files can say "30s", "5m" or "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds.
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to
// the current directory if no home directory can be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "csync")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "csync")
}

// getDataDir returns the default state directory.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share, or falls back
// to the current directory if no home directory can be determined.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "csync")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "csync")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
