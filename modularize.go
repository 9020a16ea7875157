package exapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mitchellh/mapstructure"
)

// ErrNilConstructor indicates ModularizeOptions.New was not set.
var ErrNilConstructor = errors.New("exapp: component constructor is required")

// Component is a value with a start operation, wrapped into a Module by
// Modularize.
type Component interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by components that need shutdown.
type Stopper interface {
	Stop(ctx context.Context) error
}

// ModularizeOptions describes how a Component becomes a Module.
type ModularizeOptions struct {
	// Name of the resulting module. Required.
	Name string
	// As is the extension key the component is stored under, defaulting to Name.
	As           string
	Dependencies []string
	Priority     int
	// Config is passed to New as-is when set. Otherwise the App's config
	// section under ConfigKey (defaulting to Name) is used.
	Config    any
	ConfigKey string
	New       func(app *App, config any) (Component, error)
	// Retry, when set, supplies the backoff policy for retrying Start.
	Retry func() backoff.BackOff
}

// Modularize builds a Module that constructs a component on start, stores it
// on the App and removes it again after a successful stop.
func Modularize(opts ModularizeOptions) (Module, error) {
	if opts.Name == "" {
		return Module{}, fmt.Errorf("%w: name is required", ErrInvalidModule)
	}
	if opts.New == nil {
		return Module{}, fmt.Errorf("%w: %s", ErrNilConstructor, opts.Name)
	}
	key := opts.As
	if key == "" {
		key = opts.Name
	}
	configKey := opts.ConfigKey
	if configKey == "" {
		configKey = opts.Name
	}

	m := Module{
		Name:         opts.Name,
		Dependencies: append([]string(nil), opts.Dependencies...),
		Priority:     opts.Priority,
	}

	m.Start = Func(func(ctx context.Context, app *App) error {
		config := opts.Config
		if config == nil {
			config = app.Config()[configKey]
		}
		component, err := opts.New(app, config)
		if err != nil {
			return err
		}
		if component == nil {
			return fmt.Errorf("exapp: constructor for %s returned no component", opts.Name)
		}
		app.Set(key, component)

		if opts.Retry == nil {
			return component.Start(ctx)
		}
		notify := func(err error, wait time.Duration) {
			app.Logger().Warn("component start failed, retrying",
				"module", opts.Name,
				"error", err,
				"retry_in", wait,
			)
		}
		return backoff.RetryNotify(func() error {
			return component.Start(ctx)
		}, backoff.WithContext(opts.Retry(), ctx), notify)
	})

	m.Stop = Func(func(ctx context.Context, app *App) error {
		value, ok := app.Value(key)
		if !ok {
			return nil
		}
		if stopper, ok := value.(Stopper); ok {
			if err := stopper.Stop(ctx); err != nil {
				return err
			}
		}
		app.Delete(key)
		return nil
	})

	return m, nil
}

// MustModularize is like Modularize but panics on invalid options.
func MustModularize(opts ModularizeOptions) Module {
	m, err := Modularize(opts)
	if err != nil {
		panic(err)
	}
	return m
}

// DecodeConfig decodes a loosely typed settings section such as
// map[string]any into dst. Strings are accepted for numbers, booleans and
// durations.
func DecodeConfig(src any, dst any) error {
	if src == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return fmt.Errorf("exapp: config decoder: %w", err)
	}
	if err := decoder.Decode(src); err != nil {
		return fmt.Errorf("exapp: decode config: %w", err)
	}
	return nil
}
