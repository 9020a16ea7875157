package exapp

import (
	"context"
	"errors"
	"fmt"
)

// Wildcard requests every registered module when passed to Start or Resolve.
const Wildcard = "*"

// ErrInvalidModule indicates a module descriptor failed validation.
var ErrInvalidModule = errors.New("exapp: invalid module")

// Done signals completion of a module operation. It must be called exactly
// once; a nil error reports success.
type Done func(err error)

// Operation is a module start or stop implementation. It may call done before
// returning or later from any goroutine.
type Operation func(ctx context.Context, app *App, done Done)

// Func adapts a blocking function to an Operation.
func Func(fn func(ctx context.Context, app *App) error) Operation {
	return func(ctx context.Context, app *App, done Done) {
		done(fn(ctx, app))
	}
}

// Module describes a named unit of startup and shutdown logic.
type Module struct {
	// Name uniquely identifies the module within a registry.
	Name string
	// Dependencies names the modules that must be started first.
	Dependencies []string
	// Priority orders modules that become ready in the same resolution round.
	// Lower values start earlier.
	Priority int
	// Start is required and runs once per application run.
	Start Operation
	// Stop is optional. Modules without Stop are skipped during shutdown.
	Stop Operation
}

// Validate reports whether the descriptor can be registered.
func (m Module) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidModule)
	}
	if m.Name == Wildcard {
		return fmt.Errorf("%w: name %q is reserved", ErrInvalidModule, m.Name)
	}
	if m.Start == nil {
		return fmt.Errorf("%w: start is required for %s", ErrInvalidModule, m.Name)
	}
	for _, dep := range m.Dependencies {
		if dep == "" {
			return fmt.Errorf("%w: empty dependency name in %s", ErrInvalidModule, m.Name)
		}
	}
	return nil
}

func (m Module) clone() Module {
	m.Dependencies = append([]string(nil), m.Dependencies...)
	return m
}
