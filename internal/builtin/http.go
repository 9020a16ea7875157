package builtin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/exceptionaljs/exapp"
	"github.com/exceptionaljs/exapp/health"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPSettings is the "http" settings section.
type HTTPSettings struct {
	Address string `mapstructure:"address"`
}

// Server serves health and metrics endpoints:
//
//	/healthz/live   liveness of the App
//	/healthz/ready  readiness of the App
//	/metrics        Prometheus exposition
type Server struct {
	app      *exapp.App
	address  string
	registry *prometheus.Registry

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	served   chan struct{}
}

func httpModule(opts Options) exapp.Module {
	return exapp.MustModularize(exapp.ModularizeOptions{
		Name:         HTTPModule,
		Dependencies: []string{MetricsModule},
		New: func(app *exapp.App, config any) (exapp.Component, error) {
			settings := HTTPSettings{Address: opts.HTTPAddress}
			if err := exapp.DecodeConfig(config, &settings); err != nil {
				return nil, err
			}
			return NewServer(app, settings.Address, opts.Registry), nil
		},
		Retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = opts.BindRetries
			return b
		},
	})
}

// NewServer returns an unstarted server for app.
func NewServer(app *exapp.App, address string, registry *prometheus.Registry) *Server {
	return &Server{app: app, address: address, registry: registry}
}

// Router builds the server's routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Mount("/healthz", http.StripPrefix("/healthz", health.NewHandler(s.app)))
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/healthz/ready", http.StatusTemporaryRedirect)
	})
	return r
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.served = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.app.Logger().Error("http server stopped", "module", HTTPModule, "error", err)
		}
	}(s.server, s.served)

	s.app.Logger().Info("http server listening", "module", HTTPModule, "address", ln.Addr().String())
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.server, s.served
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	<-done
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
