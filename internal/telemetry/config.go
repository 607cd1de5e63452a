package telemetry

// Config holds the tracing configuration.
type Config struct {
	// Enabled turns span export on.
	Enabled bool

	// ServiceName identifies this process to the trace backend.
	ServiceName string

	// ServiceVersion is reported alongside the service name.
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address, e.g. "localhost:4317".
	Endpoint string

	// Insecure disables TLS on the collector connection.
	Insecure bool

	// SampleRate is the fraction of traces to record, 0.0 to 1.0.
	SampleRate float64
}

// DefaultConfig returns the settings used when the config file has no
// telemetry section. Tracing stays off and sampling is left at 1.0.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "csync",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
