package exapp

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// now is overridden in tests to provide deterministic timings.
var now = time.Now

// Execution is an in-flight or completed start or stop run.
type Execution struct {
	order []string
	done  chan struct{}

	mu  sync.Mutex
	err error
}

func newExecution(order []string) *Execution {
	return &Execution{
		order: order,
		done:  make(chan struct{}),
	}
}

// Done reports when the run has completed.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Await blocks until the run completes and returns its error.
func (e *Execution) Await() error {
	<-e.done
	return e.Err()
}

// Err returns the run error, or nil while the run is in flight or after it
// succeeded.
func (e *Execution) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Order returns the modules the run covers, in the order they are processed.
func (e *Execution) Order() []string {
	return append([]string(nil), e.order...)
}

func (e *Execution) finish(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
	close(e.done)
}

// Start resolves the requested modules and starts them in dependency order.
// With no names every registered module is started. The returned Execution
// completes once every module started or the first one failed. Start returns
// an error without running anything if the App is not pending.
func (a *App) Start(ctx context.Context, names ...string) (*Execution, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(names) == 0 {
		names = []string{Wildcard}
	}

	a.mu.Lock()
	from := a.state
	if from != StatePending {
		a.mu.Unlock()
		a.logger.Error("attempt to start app multiple times", "state", from.String())
		return nil, fmt.Errorf("%w: cannot start from %s", ErrInvalidState, from)
	}
	a.state = StateStarting
	a.mu.Unlock()
	a.notifyTransition(ctx, from, StateStarting)

	modules, registered := a.registry.snapshot()
	order, err := resolveOrder(modules, registered, names)
	if err != nil {
		a.logger.Error("failed to resolve modules", "error", err)
		a.transition(ctx, StateFailed)
		exec := newExecution(nil)
		a.dispatcher.Submit(func() { exec.finish(err) })
		return exec, nil
	}

	a.mu.Lock()
	a.order = order
	a.modules = modules
	a.started = 0
	a.mu.Unlock()

	exec := newExecution(order)
	a.dispatcher.Submit(func() {
		exec.finish(a.runStart(ctx, order, modules))
	})
	return exec, nil
}

// Run starts the requested modules and waits for the outcome.
func (a *App) Run(ctx context.Context, names ...string) error {
	exec, err := a.Start(ctx, names...)
	if err != nil {
		return err
	}
	return exec.Await()
}

// Stop stops every started module in reverse start order. It is permitted
// from Running and from Failed; from Failed it stops whatever is still
// started and the App stays Failed.
func (a *App) Stop(ctx context.Context) (*Execution, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	a.mu.Lock()
	from := a.state
	var target State
	switch from {
	case StateRunning:
		target = StateStopped
	case StateFailed:
		target = StateFailed
	default:
		a.mu.Unlock()
		if from < StateRunning {
			a.logger.Error("attempt to stop a non-running app", "state", from.String())
		} else {
			a.logger.Error("attempt to stop app multiple times", "state", from.String())
		}
		return nil, fmt.Errorf("%w: cannot stop from %s", ErrInvalidState, from)
	}
	a.state = StateStopping
	a.stopErr = nil
	pending := make([]string, a.started)
	for i := range pending {
		pending[i] = a.order[a.started-1-i]
	}
	a.mu.Unlock()
	a.notifyTransition(ctx, from, StateStopping)

	exec := newExecution(pending)
	a.dispatcher.Submit(func() {
		exec.finish(a.runStop(ctx, target))
	})
	return exec, nil
}

// Shutdown stops the App and waits for the outcome.
func (a *App) Shutdown(ctx context.Context) error {
	exec, err := a.Stop(ctx)
	if err != nil {
		return err
	}
	return exec.Await()
}

func (a *App) runStart(ctx context.Context, order []string, modules map[string]Module) error {
	a.logger.Log(ctx, LevelTrace, "starting", "modules", len(order))
	for i, name := range order {
		if err := ctx.Err(); err != nil {
			a.logger.Error("start interrupted", "module", name, "error", err)
			return a.failStart(ctx, err)
		}
		m := modules[name]
		a.logger.Log(ctx, LevelTrace, "module starting", "module", name)
		if err := a.invoke(ctx, m, PhaseStart, i, m.Start); err != nil {
			a.logger.Error("module failed to start", "module", name, "error", err)
			return a.failStart(ctx, err)
		}
		a.logger.Log(ctx, LevelTrace, "module started", "module", name)
		a.mu.Lock()
		a.started = i + 1
		a.mu.Unlock()
	}

	a.transition(ctx, StateRunning)
	a.logger.Log(ctx, LevelTrace, "running")
	a.fire(ActionAfterStart)
	return nil
}

// failStart marks the App failed and, with stop-on-fail, stops the modules
// that already started. The start error is always the one reported.
//
// With stop-on-fail the App moves to Stopping in the same step that records
// the failure, so a Stop issued from a transition hook or another goroutine
// is rejected instead of racing the clean-up. The clean-up ignores
// cancellation of the start context.
func (a *App) failStart(ctx context.Context, err error) error {
	a.mu.Lock()
	from := a.state
	stopOnFail := a.stopOnFail
	if stopOnFail {
		a.state = StateStopping
	} else {
		a.state = StateFailed
	}
	a.mu.Unlock()

	a.notifyTransition(ctx, from, StateFailed)
	if !stopOnFail {
		return err
	}
	a.logger.Log(ctx, LevelTrace, "stopping started modules after failure")
	a.notifyTransition(ctx, StateFailed, StateStopping)
	if stopErr := a.runStop(context.WithoutCancel(ctx), StateFailed); stopErr != nil {
		a.logger.Warn("stop after failed start did not complete", "error", stopErr)
	}
	return err
}

// runStop stops started modules from the most recently started down. The App
// must already be in Stopping.
func (a *App) runStop(ctx context.Context, target State) error {
	a.logger.Log(ctx, LevelTrace, "stopping")
	for {
		a.mu.Lock()
		if a.started == 0 {
			a.mu.Unlock()
			break
		}
		a.started--
		index := a.started
		m := a.modules[a.order[index]]
		a.mu.Unlock()

		if m.Stop == nil {
			a.logger.Log(ctx, LevelTrace, "module has no stop operation", "module", m.Name)
			continue
		}
		a.logger.Log(ctx, LevelTrace, "module stopping", "module", m.Name)
		if err := a.invoke(ctx, m, PhaseStop, index, m.Stop); err != nil {
			a.logger.Error("module failed to stop", "module", m.Name, "error", err)
			a.mu.Lock()
			a.stopErr = err
			a.mu.Unlock()
			a.transition(ctx, StateFailed)
			return err
		}
		a.logger.Log(ctx, LevelTrace, "module stopped", "module", m.Name)
	}

	a.transition(ctx, target)
	a.logger.Log(ctx, LevelTrace, "stopped", "state", target.String())
	a.fire(ActionAfterStop)
	return nil
}

// invoke runs one module operation and waits for its completion.
func (a *App) invoke(ctx context.Context, m Module, phase Phase, index int, op Operation) error {
	event := ModuleEvent{
		AppID:     a.id,
		AppName:   a.name,
		Module:    m.Name,
		Phase:     phase,
		Index:     index,
		Status:    StatusRunning,
		StartedAt: now(),
	}
	a.invokeHook(ctx, a.hooks.OnStart, event)

	c := newCompletion(a, m.Name, phase)
	err := a.call(ctx, m.Name, phase, op, c)
	if err == nil {
		err = c.wait()
	}

	event.CompletedAt = now()
	event.Duration = event.CompletedAt.Sub(event.StartedAt)
	if err != nil {
		event.Status = StatusFailed
		event.Err = err
		a.invokeHook(ctx, a.hooks.OnFailure, event)
	} else {
		event.Status = StatusSucceeded
		a.invokeHook(ctx, a.hooks.OnSuccess, event)
	}
	a.invokeHook(ctx, a.hooks.OnFinish, event)
	return err
}

// call converts panics raised by op into a PanicError. Contract violations
// are not module failures and keep unwinding.
func (a *App) call(ctx context.Context, name string, phase Phase, op Operation, c *completion) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			if violation, ok := recovered.(*ContractViolationError); ok {
				panic(violation)
			}
			err = &PanicError{Module: name, Phase: phase, Value: recovered}
		}
	}()
	op(ctx, a, c.done)
	return nil
}

func (a *App) invokeHook(ctx context.Context, hook HookFunc, event ModuleEvent) {
	if hook != nil {
		hook(ctx, event)
	}
}

func (a *App) transition(ctx context.Context, to State) {
	a.mu.Lock()
	from := a.state
	a.state = to
	a.mu.Unlock()
	a.notifyTransition(ctx, from, to)
}

func (a *App) notifyTransition(ctx context.Context, from, to State) {
	if from == to || a.hooks.OnTransition == nil {
		return
	}
	a.hooks.OnTransition(ctx, a, from, to)
}
