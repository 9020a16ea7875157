package builtin

import (
	"context"
	"errors"

	"github.com/exceptionaljs/exapp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// RuntimeCollectors registers Go runtime and process collectors for the
// lifetime of the module.
type RuntimeCollectors struct {
	registry   *prometheus.Registry
	registered []prometheus.Collector
}

func metricsModule(opts Options) exapp.Module {
	return exapp.MustModularize(exapp.ModularizeOptions{
		Name:     MetricsModule,
		Priority: -10,
		New: func(app *exapp.App, _ any) (exapp.Component, error) {
			return &RuntimeCollectors{registry: opts.Registry}, nil
		},
	})
}

func (c *RuntimeCollectors) Start(ctx context.Context) error {
	for _, collector := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := c.registry.Register(collector); err != nil {
			var exists prometheus.AlreadyRegisteredError
			if errors.As(err, &exists) {
				continue
			}
			return err
		}
		c.registered = append(c.registered, collector)
	}
	return nil
}

func (c *RuntimeCollectors) Stop(ctx context.Context) error {
	for _, collector := range c.registered {
		c.registry.Unregister(collector)
	}
	c.registered = nil
	return nil
}
