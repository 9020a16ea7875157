// Package tracing emits OpenTelemetry spans for module operations.
package tracing

import (
	"context"
	"sync"

	"github.com/exceptionaljs/exapp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Attribute keys set on every module span.
const (
	AttrAppID   = "exapp.app.id"
	AttrAppName = "exapp.app.name"
	AttrModule  = "exapp.module"
	AttrIndex   = "exapp.index"
)

// Span names.
const (
	SpanModuleStart = "exapp.module.start"
	SpanModuleStop  = "exapp.module.stop"
)

// TracerName is the instrumentation name used by Default.
const TracerName = "github.com/exceptionaljs/exapp"

// Hooks returns lifecycle hooks that open a span when a module operation
// begins and end it when the operation completes. A nil tracer disables
// tracing.
func Hooks(tracer trace.Tracer) exapp.Hooks {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(TracerName)
	}
	t := &tracker{tracer: tracer}
	return exapp.Hooks{
		OnStart:  t.begin,
		OnFinish: t.end,
	}
}

type spanKey struct {
	app    string
	module string
	phase  exapp.Phase
}

type tracker struct {
	tracer trace.Tracer
	spans  sync.Map // spanKey -> trace.Span
}

func (t *tracker) begin(ctx context.Context, event exapp.ModuleEvent) {
	name := SpanModuleStart
	if event.Phase == exapp.PhaseStop {
		name = SpanModuleStop
	}
	_, span := t.tracer.Start(ctx, name,
		trace.WithTimestamp(event.StartedAt),
		trace.WithAttributes(
			attribute.String(AttrAppID, event.AppID),
			attribute.String(AttrAppName, event.AppName),
			attribute.String(AttrModule, event.Module),
			attribute.Int(AttrIndex, event.Index),
		),
	)
	t.spans.Store(spanKey{app: event.AppID, module: event.Module, phase: event.Phase}, span)
}

func (t *tracker) end(_ context.Context, event exapp.ModuleEvent) {
	value, ok := t.spans.LoadAndDelete(spanKey{app: event.AppID, module: event.Module, phase: event.Phase})
	if !ok {
		return
	}
	span := value.(trace.Span)
	if event.Err != nil {
		span.RecordError(event.Err)
		span.SetStatus(codes.Error, event.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(event.CompletedAt))
}
