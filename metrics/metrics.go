// Package metrics exports module lifecycle measurements to Prometheus.
package metrics

import (
	"context"

	"github.com/exceptionaljs/exapp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records module operations and application state transitions.
type Collector struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

// New registers the exapp metrics with reg. A nil reg uses the default
// Prometheus registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exapp_module_operations_total",
				Help: "Total number of module start and stop operations by outcome",
			},
			[]string{"app", "module", "phase", "status"}, // status: "succeeded", "failed"
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "exapp_module_operation_duration_seconds",
				Help: "Duration of module start and stop operations in seconds",
				Buckets: []float64{
					0.001, // 1ms - in-memory setup
					0.01,  // 10ms
					0.1,   // 100ms
					0.5,   // 500ms
					1,     // 1s - network handshakes
					5,     // 5s
					30,    // 30s - migrations, warmups
				},
			},
			[]string{"app", "module", "phase"},
		),
		state: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "exapp_app_state",
				Help: "Current application state (-1 failed, 0 pending, 1 starting, 2 running, 3 stopping, 4 stopped)",
			},
			[]string{"app"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exapp_app_transitions_total",
				Help: "Total number of application state transitions",
			},
			[]string{"app", "from", "to"},
		),
	}
}

// Hooks returns lifecycle hooks feeding the collector. A nil collector
// returns empty hooks.
func (c *Collector) Hooks() exapp.Hooks {
	if c == nil {
		return exapp.Hooks{}
	}
	return exapp.Hooks{
		OnFinish:     c.observe,
		OnTransition: c.transition,
	}
}

func (c *Collector) observe(_ context.Context, event exapp.ModuleEvent) {
	phase := string(event.Phase)
	c.operations.WithLabelValues(event.AppName, event.Module, phase, string(event.Status)).Inc()
	c.duration.WithLabelValues(event.AppName, event.Module, phase).Observe(event.Duration.Seconds())
}

func (c *Collector) transition(_ context.Context, app *exapp.App, from, to exapp.State) {
	c.state.WithLabelValues(app.Name()).Set(float64(to))
	c.transitions.WithLabelValues(app.Name(), from.String(), to.String()).Inc()
}
