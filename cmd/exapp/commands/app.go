package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/exceptionaljs/exapp"
	"github.com/exceptionaljs/exapp/config"
	"github.com/exceptionaljs/exapp/internal/builtin"
	"github.com/prometheus/client_golang/prometheus"
)

// newLogHandler builds the slog handler described by cfg.
func newLogHandler(w io.Writer, cfg config.LoggingConfig) (slog.Handler, error) {
	level, err := exapp.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text", "":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// newRegistry returns a module registry holding the builtin modules.
func newRegistry(cfg *config.Config, metrics *prometheus.Registry) *exapp.Registry {
	reg := exapp.NewRegistry()
	reg.MustRegister(builtin.Modules(builtin.Options{
		Registry:          metrics,
		HTTPAddress:       cfg.HTTP.Address,
		HeartbeatInterval: cfg.Heartbeat.Interval,
	})...)
	return reg
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
