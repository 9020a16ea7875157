package commands

import (
	"context"
	"log/slog"

	"github.com/exceptionaljs/exapp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// logExporter writes finished spans to the command's log handler at trace
// level.
type logExporter struct {
	logger *slog.Logger
}

func newLogExporter(h slog.Handler) *logExporter {
	return &logExporter{logger: slog.New(h)}
}

func (e *logExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		args := []any{
			"span", span.Name(),
			"trace_id", span.SpanContext().TraceID().String(),
			"duration", span.EndTime().Sub(span.StartTime()).String(),
			"status", span.Status().Code.String(),
		}
		for _, kv := range span.Attributes() {
			args = append(args, string(kv.Key), kv.Value.Emit())
		}
		e.logger.Log(ctx, exapp.LevelTrace, "span finished", args...)
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error {
	return nil
}
