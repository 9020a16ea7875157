package exapp

import (
	"context"
	"time"
)

// OperationStatus captures the outcome of a module operation.
type OperationStatus string

const (
	StatusRunning   OperationStatus = "running"
	StatusSucceeded OperationStatus = "succeeded"
	StatusFailed    OperationStatus = "failed"
)

// ModuleEvent is passed to hook callbacks to describe module progress.
type ModuleEvent struct {
	AppID       string
	AppName     string
	Module      string
	Phase       Phase
	Index       int
	Status      OperationStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Err         error
}

// HookFunc is invoked for module lifecycle notifications.
type HookFunc func(context.Context, ModuleEvent)

// TransitionFunc is invoked whenever the application changes state.
type TransitionFunc func(ctx context.Context, app *App, from, to State)

// Hooks aggregates optional lifecycle callbacks. Hooks run on the engine's
// driver and must not block.
type Hooks struct {
	OnStart      HookFunc
	OnSuccess    HookFunc
	OnFailure    HookFunc
	OnFinish     HookFunc
	OnTransition TransitionFunc
}

// Merge combines two hook sets, running the receiver first.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnStart:      chainHooks(h.OnStart, other.OnStart),
		OnSuccess:    chainHooks(h.OnSuccess, other.OnSuccess),
		OnFailure:    chainHooks(h.OnFailure, other.OnFailure),
		OnFinish:     chainHooks(h.OnFinish, other.OnFinish),
		OnTransition: chainTransitions(h.OnTransition, other.OnTransition),
	}
}

func chainHooks(first, second HookFunc) HookFunc {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	default:
		return func(ctx context.Context, event ModuleEvent) {
			first(ctx, event)
			second(ctx, event)
		}
	}
}

func chainTransitions(first, second TransitionFunc) TransitionFunc {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	default:
		return func(ctx context.Context, app *App, from, to State) {
			first(ctx, app, from, to)
			second(ctx, app, from, to)
		}
	}
}
