package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fioncat/csync/internal/bytesize"
	"github.com/fioncat/csync/pkg/api"
	"github.com/fioncat/csync/pkg/events"
	"github.com/fioncat/csync/pkg/store"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Paths derive from DataDir, so it is resolved first
func ApplyDefaults(cfg *Config) {
	applyDataDirDefaults(cfg)
	applyShutdownTimeoutDefaults(cfg)
	applyLoggingDefaults(&cfg.Logging)
	applyDatabaseDefaults(&cfg.Database, cfg.DataDir)
	applyAPIDefaults(&cfg.API, cfg.ShutdownTimeout)
	applyEventsDefaults(&cfg.Events, cfg.ShutdownTimeout)
	applyAuthDefaults(&cfg.Auth, cfg.DataDir)
	applyRecycleDefaults(&cfg.Recycle)
	applyMetricsDefaults(&cfg.Metrics)
	applyTelemetryDefaults(&cfg.Telemetry)
}

// applyDataDirDefaults resolves the state root.
func applyDataDirDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = getDataDir()
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyDatabaseDefaults places the database under the data directory
// unless an explicit path is configured.
func applyDatabaseDefaults(cfg *store.Config, dataDir string) {
	if cfg.Path == "" {
		cfg.Path = filepath.Join(dataDir, "sqlite.db")
	}
}

// applyAPIDefaults sets REST API server defaults. The API is always
// enabled; it is the only way to reach the service.
func applyAPIDefaults(cfg *api.APIConfig, shutdownTimeout time.Duration) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 7703
	}
	if cfg.MaxPayloadSize == 0 {
		cfg.MaxPayloadSize = 10 * bytesize.MiB
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = shutdownTimeout
	}
}

// applyEventsDefaults sets event stream listener defaults.
func applyEventsDefaults(cfg *events.ServerConfig, shutdownTimeout time.Duration) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 7704
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 128
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = shutdownTimeout
	}
}

// applyAuthDefaults sets token and password hashing defaults.
func applyAuthDefaults(cfg *AuthConfig, dataDir string) {
	if cfg.KeyFile == "" {
		cfg.KeyFile = filepath.Join(dataDir, "token_rsa.pem")
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.SaltLength == 0 {
		cfg.SaltLength = 30
	}
}

// applyRecycleDefaults sets blob expiry defaults.
// Interval has no default here: zero means one sweep per TTL and the
// recycler resolves that itself.
func applyRecycleDefaults(cfg *RecycleConfig) {
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 7705
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)
	// No need to set, zero value is false

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	// Default profile types include CPU, memory allocation, and goroutines
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
