package exapp

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrInvalidState indicates a lifecycle call was made from the wrong state.
var ErrInvalidState = errors.New("exapp: invalid application state")

// DefaultName is used when no name is supplied through WithName.
const DefaultName = "exapp"

// Config carries per-module configuration sections keyed by module name. It
// is opaque to the engine.
type Config map[string]any

// App orchestrates the start and stop sequence of registered modules. An App
// runs once: after it reaches Stopped or Failed it cannot be started again.
type App struct {
	id         string
	name       string
	registry   *Registry
	config     Config
	logs       *BufferedHandler
	logger     *slog.Logger
	hooks      Hooks
	dispatcher Dispatcher

	mu         sync.Mutex
	state      State
	stopOnFail bool
	order      []string
	modules    map[string]Module
	started    int
	stopErr    error
	handlers   handlerBus
	values     map[string]any
}

// Option configures an App.
type Option func(*options)

type options struct {
	name       string
	registry   *Registry
	modules    []Module
	config     Config
	logHandler slog.Handler
	hooks      Hooks
	dispatcher Dispatcher
	stopOnFail bool
}

func defaultOptions() options {
	return options{
		name:       DefaultName,
		dispatcher: goroutineDispatcher{},
	}
}

// WithName sets the application name reported in logs, metrics and traces.
func WithName(name string) Option {
	return func(opts *options) {
		if name != "" {
			opts.name = name
		}
	}
}

// WithRegistry makes the App use reg instead of a private registry.
func WithRegistry(reg *Registry) Option {
	return func(opts *options) {
		if reg != nil {
			opts.registry = reg
		}
	}
}

// WithModules registers modules when the App is created. New panics if any
// of them is invalid.
func WithModules(mods ...Module) Option {
	return func(opts *options) {
		opts.modules = append(opts.modules, mods...)
	}
}

// WithConfig supplies per-module configuration sections.
func WithConfig(cfg Config) Option {
	return func(opts *options) {
		opts.config = cfg
	}
}

// WithLogHandler attaches the destination log handler. Without it, records
// are buffered until SetLogHandler is called.
func WithLogHandler(h slog.Handler) Option {
	return func(opts *options) {
		opts.logHandler = h
	}
}

// WithHooks registers module lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(opts *options) {
		opts.hooks = opts.hooks.Merge(h)
	}
}

// WithDispatcher supplies the dispatcher that runs start and stop drivers.
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(opts *options) {
		if dispatcher != nil {
			opts.dispatcher = dispatcher
		}
	}
}

// WithStopOnFail stops already started modules automatically when start fails.
func WithStopOnFail(enabled bool) Option {
	return func(opts *options) {
		opts.stopOnFail = enabled
	}
}

// New constructs a pending App.
func New(opts ...Option) *App {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = NewRegistry()
	}
	if cfg.config == nil {
		cfg.config = Config{}
	}

	app := &App{
		id:         uuid.NewString(),
		name:       cfg.name,
		registry:   cfg.registry,
		config:     cfg.config,
		logs:       NewBufferedHandler(),
		hooks:      cfg.hooks,
		dispatcher: cfg.dispatcher,
		state:      StatePending,
		stopOnFail: cfg.stopOnFail,
		handlers:   newHandlerBus(),
		values:     make(map[string]any),
	}
	app.logger = slog.New(app.logs).With("app", app.name, "app_id", app.id)

	if cfg.logHandler != nil {
		_ = app.logs.Attach(cfg.logHandler)
	}
	if len(cfg.modules) > 0 {
		cfg.registry.MustRegister(cfg.modules...)
	}
	return app
}

// ID returns the unique identifier of this application instance.
func (a *App) ID() string {
	return a.id
}

// Name returns the application name.
func (a *App) Name() string {
	return a.name
}

// Registry returns the registry modules are resolved from.
func (a *App) Registry() *Registry {
	return a.registry
}

// Register adds modules to the App's registry.
func (a *App) Register(mods ...Module) error {
	return a.registry.Register(mods...)
}

// IsRegistered reports whether a module named name is registered.
func (a *App) IsRegistered(name string) bool {
	return a.registry.Has(name)
}

// Config returns the per-module configuration sections.
func (a *App) Config() Config {
	return a.config
}

// Logger returns the application logger. It follows SetLogHandler even when
// obtained before the switch.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Log writes a single record at level.
func (a *App) Log(level slog.Level, msg string, args ...any) {
	a.logger.Log(context.Background(), level, msg, args...)
}

// SetLogHandler installs h as the log destination and flushes buffered records.
func (a *App) SetLogHandler(h slog.Handler) error {
	return a.logs.Attach(h)
}

// State returns the current lifecycle state.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// StopOnFail reports whether a failed start stops the started modules.
func (a *App) StopOnFail() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopOnFail
}

// SetStopOnFail changes the stop-on-fail behaviour for the next failure.
func (a *App) SetStopOnFail(enabled bool) {
	a.mu.Lock()
	a.stopOnFail = enabled
	a.mu.Unlock()
}

// Order returns the resolved start order of the current run.
func (a *App) Order() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.order...)
}

// StopError returns the error of the last failed stop operation.
func (a *App) StopError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopErr
}

// RunningModules returns the modules that started and have not been stopped,
// in start order.
func (a *App) RunningModules() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.order[:a.started]...)
}

// ModuleRunning reports whether the named module is currently started.
func (a *App) ModuleRunning(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, started := range a.order[:a.started] {
		if started == name {
			return true
		}
	}
	return false
}

// AddHandler registers fn to run once when action fires. A nil receiver is
// replaced by the App when the handler runs.
func (a *App) AddHandler(action Action, fn HandlerFunc, receiver any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handlers.add(action, fn, receiver)
}

// Set stores an extension value under key.
func (a *App) Set(key string, value any) {
	a.mu.Lock()
	a.values[key] = value
	a.mu.Unlock()
}

// Value returns the extension value stored under key.
func (a *App) Value(key string) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.values[key]
	return v, ok
}

// Delete removes the extension value stored under key.
func (a *App) Delete(key string) {
	a.mu.Lock()
	delete(a.values, key)
	a.mu.Unlock()
}

func (a *App) fire(action Action) {
	a.mu.Lock()
	handlers := a.handlers.take(action)
	a.mu.Unlock()

	for _, h := range handlers {
		receiver := h.receiver
		if receiver == nil {
			receiver = a
		}
		h.fn(a, receiver)
	}
}
