// Package builtin provides the modules shipped with the exapp command.
package builtin

import (
	"time"

	"github.com/exceptionaljs/exapp"
	"github.com/prometheus/client_golang/prometheus"
)

// Module names.
const (
	MetricsModule   = "metrics"
	HTTPModule      = "http"
	HeartbeatModule = "heartbeat"
)

// Options configures the builtin modules. Per-module settings sections in
// the App's config override these values.
type Options struct {
	// Registry receives the runtime collectors and is served on /metrics.
	Registry *prometheus.Registry
	// HTTPAddress is the listen address of the http module.
	HTTPAddress string
	// HeartbeatInterval is how often the heartbeat module logs.
	HeartbeatInterval time.Duration
	// BindRetries bounds how long the http module retries a failed bind.
	BindRetries time.Duration
}

// Modules returns the builtin module descriptors.
func Modules(opts Options) []exapp.Module {
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.HTTPAddress == "" {
		opts.HTTPAddress = "127.0.0.1:9090"
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.BindRetries <= 0 {
		opts.BindRetries = 10 * time.Second
	}

	return []exapp.Module{
		metricsModule(opts),
		httpModule(opts),
		heartbeatModule(opts),
	}
}
