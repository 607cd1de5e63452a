package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// InitConfig creates a sample configuration file at the default
// location and returns its path. Fails when a file already exists
// unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a sample configuration file at the given
// path, creating parent directories as needed. Fails when a file
// already exists unless force is set.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: the admin password may be filled in later.
	if err := os.WriteFile(path, []byte(sampleConfig()), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// sampleConfig renders the commented sample configuration. Values
// match the built-in defaults so the file documents what an empty
// config already does.
func sampleConfig() string {
	return fmt.Sprintf(`# csync Configuration File
#
# This file was generated by 'csyncd init'. All values below match the
# built-in defaults; uncomment and edit the ones you want to change.
# Every setting can also be provided via environment variables with the
# CSYNC_ prefix, e.g. CSYNC_LOGGING_LEVEL=DEBUG.

# State root. The database and the token signing key live under it
# unless configured elsewhere.
#data_dir: %s

# Maximum time to wait for graceful shutdown.
#shutdown_timeout: 30s

logging:
  # Minimum log level: DEBUG, INFO, WARN, ERROR
  level: INFO
  # Output format: text or json
  format: text
  # Where logs are written: stdout, stderr, or a file path
  output: stdout

database:
  # SQLite database file. Created on first start.
  #path: <data_dir>/sqlite.db

api:
  # REST API listener.
  host: 0.0.0.0
  port: 7703
  # Request bodies above this size are rejected with 413.
  max_payload_size: 10MiB
  # Idle keep-alive connections are closed after this long.
  keep_alive: 2m
  tls:
    # Serve HTTPS. Plain HTTP logs a warning on start.
    enabled: false
    #cert_file: /path/to/cert.pem
    #key_file: /path/to/key.pem

events:
  # TCP event stream listener.
  host: 0.0.0.0
  port: 7704
  # Concurrent subscriber connections.
  max_connections: 128

auth:
  # RSA private key used to sign bearer tokens.
  # Generated on first start when missing.
  #key_file: <data_dir>/token_rsa.pem
  # Issued bearer tokens stay valid for this long.
  token_ttl: 24h
  # Length of generated password salts.
  salt_length: 30

admin:
  # Admin password. Admin authenticates only from loopback peers.
  # Leave empty to disable admin access entirely.
  #password: ""

recycle:
  # Unpinned blobs are deleted this long after their last update.
  ttl: 24h
  # Sweep period. Zero sweeps once per TTL.
  #interval: 1h

metrics:
  # Prometheus metrics endpoint (GET /metrics).
  enabled: false
  host: 127.0.0.1
  port: 7705

telemetry:
  # OpenTelemetry tracing, exported over OTLP gRPC.
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0
  profiling:
    # Pyroscope continuous profiling.
    enabled: false
    endpoint: http://localhost:4040
`, getDataDir())
}
