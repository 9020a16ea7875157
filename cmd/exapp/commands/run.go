package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exceptionaljs/exapp"
	"github.com/exceptionaljs/exapp/metrics"
	"github.com/exceptionaljs/exapp/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var shutdownTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run [modules...]",
	Short: "Start modules and wait for a termination signal",
	Long: `Start the requested modules (or the modules listed in the configuration)
in dependency order, then block until SIGINT or SIGTERM and stop them in
reverse order.

Examples:
  # Start everything
  exapp run

  # Start the http module and its dependencies
  exapp run http

  # Override the log level
  EXAPP_LOGGING_LEVEL=trace exapp run`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "Maximum time to wait for modules to stop")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	handler, err := newLogHandler(cmd.ErrOrStderr(), cfg.Logging)
	if err != nil {
		return err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(newLogExporter(handler)))
	otel.SetTracerProvider(provider)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	promRegistry := prometheus.NewRegistry()
	collector := metrics.New(promRegistry)

	app := exapp.New(
		exapp.WithName(cfg.Name),
		exapp.WithRegistry(newRegistry(cfg, promRegistry)),
		exapp.WithConfig(cfg.AppConfig()),
		exapp.WithLogHandler(handler),
		exapp.WithStopOnFail(cfg.StopOnFail),
		exapp.WithHooks(collector.Hooks()),
		exapp.WithHooks(tracing.Hooks(otel.Tracer(tracing.TracerName))),
	)

	names := args
	if len(names) == 0 {
		names = cfg.Modules
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, names...); err != nil {
		if !cfg.StopOnFail {
			if stopErr := app.Shutdown(context.Background()); stopErr != nil {
				app.Logger().Error("cleanup after failed start", "error", stopErr)
			}
		}
		return fmt.Errorf("start failed: %w", err)
	}
	app.Logger().Info("app running", "modules", app.Order())

	<-ctx.Done()
	app.Logger().Info("shutting down", "reason", context.Cause(ctx))

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("stop failed: %w", err)
	}
	return nil
}
