// Package metrics exposes Prometheus collectors for the server.
//
// Metrics are opt-in: call InitRegistry once at startup to enable them.
// When the registry was never initialized every recording function is a
// no-op, so instrumented packages pay nothing in tests and in
// deployments that do not scrape.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var registry *prometheus.Registry

// InitRegistry creates the process registry and registers all
// collectors. Call it once, before the servers start.
func InitRegistry() {
	if registry != nil {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	initCollectors(registry)
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return registry != nil
}

// GetRegistry returns the process registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}
