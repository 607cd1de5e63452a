package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for invalid or conflicting values.
//
// Field constraints are enforced through the `validate` struct tags;
// cross-field rules the tags cannot express are checked by hand.
// Validate never mutates the config; normalization happens in
// ApplyDefaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.API.TLS.Enabled {
		if cfg.API.TLS.CertFile == "" || cfg.API.TLS.KeyFile == "" {
			return fmt.Errorf("api.tls: cert_file and key_file are required when TLS is enabled")
		}
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry: endpoint is required when telemetry is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("telemetry: profiling endpoint is required when profiling is enabled")
	}

	return validatePorts(cfg)
}

// validatePorts rejects listener port collisions.
func validatePorts(cfg *Config) error {
	if cfg.API.Port == cfg.Events.Port {
		return fmt.Errorf("api.port and events.port are both %d", cfg.API.Port)
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port == cfg.API.Port {
			return fmt.Errorf("metrics.port collides with api.port (%d)", cfg.Metrics.Port)
		}
		if cfg.Metrics.Port == cfg.Events.Port {
			return fmt.Errorf("metrics.port collides with events.port (%d)", cfg.Metrics.Port)
		}
	}
	return nil
}
