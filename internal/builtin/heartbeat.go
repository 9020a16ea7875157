package builtin

import (
	"context"
	"sync"
	"time"

	"github.com/exceptionaljs/exapp"
)

// HeartbeatSettings is the "heartbeat" settings section.
type HeartbeatSettings struct {
	Interval time.Duration `mapstructure:"interval"`
	Message  string        `mapstructure:"message"`
}

// Heartbeat logs a line periodically while the App runs.
type Heartbeat struct {
	app      *exapp.App
	settings HeartbeatSettings

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
	beats   int
}

func heartbeatModule(opts Options) exapp.Module {
	return exapp.MustModularize(exapp.ModularizeOptions{
		Name:     HeartbeatModule,
		Priority: 10,
		New: func(app *exapp.App, config any) (exapp.Component, error) {
			settings := HeartbeatSettings{Interval: opts.HeartbeatInterval, Message: "heartbeat"}
			if err := exapp.DecodeConfig(config, &settings); err != nil {
				return nil, err
			}
			if settings.Interval <= 0 {
				settings.Interval = opts.HeartbeatInterval
			}
			return &Heartbeat{app: app, settings: settings}, nil
		},
	})
}

func (h *Heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		return nil
	}
	h.stop = make(chan struct{})
	h.stopped = make(chan struct{})
	go h.loop(h.stop, h.stopped)
	return nil
}

func (h *Heartbeat) loop(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	started := time.Now()
	ticker := time.NewTicker(h.settings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			h.mu.Lock()
			h.beats++
			h.mu.Unlock()
			h.app.Logger().Info(h.settings.Message,
				"module", HeartbeatModule,
				"uptime", now.Sub(started).Round(time.Second).String(),
				"state", h.app.State().String(),
			)
		}
	}
}

func (h *Heartbeat) Stop(ctx context.Context) error {
	h.mu.Lock()
	stop, stopped := h.stop, h.stopped
	h.stop = nil
	h.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Beats returns how many heartbeats were logged.
func (h *Heartbeat) Beats() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.beats
}
