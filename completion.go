package exapp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// fatalOutput receives contract violations when the App has no log handler
// attached yet, so the message is not lost in the buffer.
var fatalOutput io.Writer = os.Stderr

// ErrCompletedTwice indicates a module signalled completion more than once.
var ErrCompletedTwice = errors.New("exapp: module completed more than once")

// ContractViolationError is the panic value raised when a module calls its
// Done function more than once. It is never converted into a module error.
type ContractViolationError struct {
	Module string
	Phase  Phase
	Calls  int32
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("exapp: module %s completed %s %d times", e.Module, e.Phase, e.Calls)
}

func (e *ContractViolationError) Is(target error) bool {
	return target == ErrCompletedTwice
}

// PanicError wraps a panic recovered from a module operation. Its message is
// the panic value itself so callers see what the module raised.
type PanicError struct {
	Module string
	Phase  Phase
	Value  any
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// completion resolves exactly once; later calls are contract violations.
type completion struct {
	app    *App
	module string
	phase  Phase
	calls  atomic.Int32
	result chan error
}

func newCompletion(app *App, module string, phase Phase) *completion {
	return &completion{
		app:    app,
		module: module,
		phase:  phase,
		result: make(chan error, 1),
	}
}

func (c *completion) done(err error) {
	n := c.calls.Add(1)
	if n != 1 {
		// Log once, fail on every extra call.
		if n == 2 {
			c.reportViolation()
		}
		panic(&ContractViolationError{Module: c.module, Phase: c.phase, Calls: n})
	}
	c.result <- err
}

func (c *completion) wait() error {
	return <-c.result
}

func (c *completion) reportViolation() {
	args := []any{"module", c.module, "phase", string(c.phase)}
	c.app.logger.Error("module completed more than once", args...)
	if c.app.logs.Attached() {
		return
	}
	fallback := slog.New(slog.NewTextHandler(fatalOutput, nil)).With("app", c.app.name, "app_id", c.app.id)
	fallback.Error("module completed more than once", args...)
}
