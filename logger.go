package exapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// LevelTrace is the most verbose level; the engine reports every module
// transition at this level.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel converts a level name to a slog.Level. "silly" is accepted as an
// alias of "trace".
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "silly":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("exapp: unknown log level %q", s)
	}
}

type handlerOp func(slog.Handler) slog.Handler

type pendingRecord struct {
	ctx    context.Context
	record slog.Record
	ops    []handlerOp
}

type logSink struct {
	mu      sync.Mutex
	target  slog.Handler
	pending []pendingRecord
}

// BufferedHandler is a slog.Handler that keeps records in memory until a
// destination handler is attached, then forwards everything to it. Handlers
// derived through WithAttrs and WithGroup share the same buffer, so loggers
// created before Attach follow the switch.
type BufferedHandler struct {
	sink *logSink
	ops  []handlerOp
}

// NewBufferedHandler returns a handler with no destination.
func NewBufferedHandler() *BufferedHandler {
	return &BufferedHandler{sink: &logSink{}}
}

// Attach installs target and flushes buffered records to it in order.
func (h *BufferedHandler) Attach(target slog.Handler) error {
	if target == nil {
		return errors.New("exapp: nil log handler")
	}
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()

	h.sink.target = target
	pending := h.sink.pending
	h.sink.pending = nil

	var errs []error
	for _, p := range pending {
		dst := applyOps(target, p.ops)
		if !dst.Enabled(p.ctx, p.record.Level) {
			continue
		}
		if err := dst.Handle(p.ctx, p.record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Detach removes the destination; subsequent records are buffered again.
func (h *BufferedHandler) Detach() {
	h.sink.mu.Lock()
	h.sink.target = nil
	h.sink.mu.Unlock()
}

// Attached reports whether a destination handler is installed.
func (h *BufferedHandler) Attached() bool {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return h.sink.target != nil
}

// Buffered returns the number of records waiting for a destination.
func (h *BufferedHandler) Buffered() int {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return len(h.sink.pending)
}

func (h *BufferedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	h.sink.mu.Lock()
	target := h.sink.target
	h.sink.mu.Unlock()
	if target == nil {
		return true
	}
	return applyOps(target, h.ops).Enabled(ctx, level)
}

func (h *BufferedHandler) Handle(ctx context.Context, r slog.Record) error {
	h.sink.mu.Lock()
	target := h.sink.target
	if target == nil {
		h.sink.pending = append(h.sink.pending, pendingRecord{ctx: ctx, record: r.Clone(), ops: h.ops})
		h.sink.mu.Unlock()
		return nil
	}
	h.sink.mu.Unlock()
	return applyOps(target, h.ops).Handle(ctx, r)
}

func (h *BufferedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	attrs = append([]slog.Attr(nil), attrs...)
	return h.with(func(next slog.Handler) slog.Handler {
		return next.WithAttrs(attrs)
	})
}

func (h *BufferedHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(next slog.Handler) slog.Handler {
		return next.WithGroup(name)
	})
}

func (h *BufferedHandler) with(op handlerOp) *BufferedHandler {
	ops := make([]handlerOp, 0, len(h.ops)+1)
	ops = append(ops, h.ops...)
	ops = append(ops, op)
	return &BufferedHandler{sink: h.sink, ops: ops}
}

func applyOps(h slog.Handler, ops []handlerOp) slog.Handler {
	for _, op := range ops {
		h = op(h)
	}
	return h
}
