package api

import (
	"time"

	"github.com/fioncat/csync/internal/bytesize"
)

// TLSConfig enables TLS on the API listener.
type TLSConfig struct {
	// Enabled turns TLS on. The server logs a warning when it is off.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// CertFile is the PEM certificate path.
	CertFile string `mapstructure:"cert_file" yaml:"cert_file,omitempty" json:"cert_file,omitempty"`

	// KeyFile is the PEM private key path.
	KeyFile string `mapstructure:"key_file" yaml:"key_file,omitempty" json:"key_file,omitempty"`
}

// APIConfig configures the REST API HTTP server.
type APIConfig struct {
	// Host is the address to bind to.
	// Default: 0.0.0.0
	Host string `mapstructure:"host" yaml:"host" json:"host"`

	// Port is the HTTP port for the API endpoints.
	// Default: 7703
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port" json:"port"`

	// MaxPayloadSize caps request bodies. Oversized uploads are
	// rejected before the body is read into memory.
	// Default: 10MiB
	MaxPayloadSize bytesize.ByteSize `mapstructure:"max_payload_size" yaml:"max_payload_size" json:"max_payload_size"`

	// KeepAlive is how long an idle keep-alive connection is held open.
	// Default: 2m
	KeepAlive time.Duration `mapstructure:"keep_alive" yaml:"keep_alive" json:"keep_alive"`

	// ShutdownTimeout bounds graceful shutdown once the context that
	// drives Start is cancelled.
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty"`

	// TLS configures transport encryption.
	TLS TLSConfig `mapstructure:"tls" yaml:"tls" json:"tls"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *APIConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port <= 0 {
		c.Port = 7703
	}
	if c.MaxPayloadSize == 0 {
		c.MaxPayloadSize = 10 * bytesize.MiB
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}
