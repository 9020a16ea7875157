package exapp

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppStartAssignsSequence(t *testing.T) {
	var next int
	seq := make(map[string]int)
	assign := func(name string) Operation {
		return Func(func(context.Context, *App) error {
			seq[name] = next
			next++
			return nil
		})
	}

	app := New(WithModules(
		Module{Name: "counter", Start: assign("counter")},
		Module{Name: "a", Dependencies: []string{"counter"}, Start: assign("a")},
		Module{Name: "b", Dependencies: []string{"counter", "a"}, Start: assign("b")},
	))

	require.NoError(t, startApp(t, app, "b", "a"))
	assert.Equal(t, map[string]int{"counter": 0, "a": 1, "b": 2}, seq)
	assert.Equal(t, StateRunning, app.State())
	assert.Equal(t, []string{"counter", "a", "b"}, app.Order())
	assert.Equal(t, []string{"counter", "a", "b"}, app.RunningModules())
	assert.True(t, app.ModuleRunning("a"))
	assert.False(t, app.ModuleRunning("missing"))
}

func TestAppStopReversesStartOrder(t *testing.T) {
	j := &journal{}
	app := New(WithModules(
		j.tracked("db"),
		j.tracked("cache", "db"),
		j.tracked("api", "db", "cache"),
		Module{Name: "metrics", Start: j.op("start metrics")},
	))

	require.NoError(t, startApp(t, app))
	exec, err := app.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"metrics", "api", "cache", "db"}, exec.Order())
	require.NoError(t, await(t, exec))

	assert.Equal(t, []string{
		"start db", "start cache", "start api", "start metrics",
		"stop api", "stop cache", "stop db",
	}, j.list())
	assert.Equal(t, StateStopped, app.State())
	assert.Empty(t, app.RunningModules())
}

func TestAppStartFailureStopsAtFailingModule(t *testing.T) {
	j := &journal{}
	boom := errors.New("boom")
	app := New(WithModules(
		j.tracked("a"),
		Module{Name: "b", Dependencies: []string{"a"}, Start: failWith(boom)},
		j.tracked("c", "b"),
	))

	err := startApp(t, app)
	assert.Same(t, boom, err)
	assert.Equal(t, StateFailed, app.State())
	assert.Equal(t, []string{"start a"}, j.list())
	assert.Equal(t, []string{"a"}, app.RunningModules())
}

func TestAppPanicSurfacesMessage(t *testing.T) {
	j := &journal{}
	app := New(WithModules(
		Module{Name: "thrower", Start: Func(func(context.Context, *App) error {
			panic("disk on fire")
		})},
		j.tracked("after", "thrower"),
	))

	err := startApp(t, app)
	require.Error(t, err)
	assert.EqualError(t, err, "disk on fire")

	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "thrower", panicErr.Module)
	assert.Equal(t, PhaseStart, panicErr.Phase)
	assert.Empty(t, j.list())
}

func TestAppPanicWithErrorUnwraps(t *testing.T) {
	sentinel := errors.New("sentinel")
	app := New(WithModules(Module{Name: "m", Start: func(context.Context, *App, Done) {
		panic(sentinel)
	}}))

	err := startApp(t, app)
	assert.ErrorIs(t, err, sentinel)
	assert.EqualError(t, err, "sentinel")
}

func TestAppStopOnFail(t *testing.T) {
	j := &journal{}
	boom := errors.New("start failed")
	app := New(
		WithStopOnFail(true),
		WithModules(
			j.tracked("a"),
			j.tracked("b", "a"),
			Module{Name: "c", Dependencies: []string{"b"}, Start: failWith(boom)},
		),
	)

	err := startApp(t, app)
	assert.Same(t, boom, err)
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, j.list())
	assert.Equal(t, StateFailed, app.State())
	assert.Empty(t, app.RunningModules())
}

func TestAppStopOnFailReportsStartError(t *testing.T) {
	startErr := errors.New("start failed")
	stopErr := errors.New("stop failed")
	app := New(
		WithStopOnFail(true),
		WithModules(
			Module{Name: "a", Start: succeed, Stop: failWith(stopErr)},
			Module{Name: "b", Dependencies: []string{"a"}, Start: failWith(startErr)},
		),
	)

	err := startApp(t, app)
	assert.Same(t, startErr, err)
	assert.Same(t, stopErr, app.StopError())
	assert.Equal(t, StateFailed, app.State())
}

func TestAppStopOnFailRejectsConcurrentStop(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	slowStop := func(ctx context.Context, app *App, done Done) {
		n := inFlight.Add(1)
		for {
			peak := maxInFlight.Load()
			if n <= peak || maxInFlight.CompareAndSwap(peak, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		done(nil)
	}

	var hookStopErr error
	var hookState State
	boom := errors.New("start failed")
	app := New(
		WithStopOnFail(true),
		WithHooks(Hooks{OnTransition: func(ctx context.Context, app *App, from, to State) {
			if from == StateStarting && to == StateFailed {
				hookState = app.State()
				_, hookStopErr = app.Stop(ctx)
			}
		}}),
		WithModules(
			Module{Name: "a", Start: succeed, Stop: slowStop},
			Module{Name: "b", Dependencies: []string{"a"}, Start: succeed, Stop: slowStop},
			Module{Name: "c", Dependencies: []string{"b"}, Start: succeed, Stop: slowStop},
			Module{Name: "d", Dependencies: []string{"c"}, Start: failWith(boom)},
		),
	)

	err := startApp(t, app)
	assert.Same(t, boom, err)
	assert.Equal(t, StateStopping, hookState)
	assert.ErrorIs(t, hookStopErr, ErrInvalidState)
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, StateFailed, app.State())
	assert.Empty(t, app.RunningModules())
}

func TestAppStopOnFailIgnoresCancelledStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stopCtxErr error
	app := New(
		WithStopOnFail(true),
		WithModules(
			Module{
				Name: "a",
				Start: func(ctx context.Context, app *App, done Done) {
					cancel()
					done(nil)
				},
				Stop: func(ctx context.Context, app *App, done Done) {
					stopCtxErr = ctx.Err()
					done(ctx.Err())
				},
			},
			Module{Name: "b", Dependencies: []string{"a"}, Start: succeed},
		),
	)

	exec, err := app.Start(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, await(t, exec), context.Canceled)
	assert.NoError(t, stopCtxErr)
	assert.NoError(t, app.StopError())
	assert.Equal(t, StateFailed, app.State())
	assert.Empty(t, app.RunningModules())
}

func TestAppStopAfterFailedStart(t *testing.T) {
	j := &journal{}
	app := New(WithModules(
		j.tracked("a"),
		j.tracked("b", "a"),
		Module{Name: "c", Dependencies: []string{"b"}, Start: failWith(errors.New("no"))},
	))

	require.Error(t, startApp(t, app))
	require.NoError(t, stopApp(t, app))

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, j.list())
	assert.Equal(t, StateFailed, app.State())
}

func TestAppStopAfterFailureAtFirstModule(t *testing.T) {
	app := New(WithModules(Module{Name: "a", Start: failWith(errors.New("no"))}))

	require.Error(t, startApp(t, app))
	require.NoError(t, stopApp(t, app))
	assert.Equal(t, StateFailed, app.State())
}

func TestAppStopFailureHaltsReversal(t *testing.T) {
	j := &journal{}
	stopErr := errors.New("stuck")
	app := New(WithModules(
		j.tracked("a"),
		Module{Name: "b", Dependencies: []string{"a"}, Start: j.op("start b"), Stop: failWith(stopErr)},
		j.tracked("c", "b"),
	))

	require.NoError(t, startApp(t, app))
	err := stopApp(t, app)
	assert.Same(t, stopErr, err)
	assert.Same(t, stopErr, app.StopError())
	assert.Equal(t, StateFailed, app.State())
	assert.Equal(t, []string{"start a", "start b", "start c", "stop c"}, j.list())
	assert.Equal(t, []string{"a"}, app.RunningModules())

	// A later stop from Failed continues below the failed module.
	require.NoError(t, stopApp(t, app))
	assert.Equal(t, []string{"start a", "start b", "start c", "stop c", "stop a"}, j.list())
	assert.NoError(t, app.StopError())
}

func TestAppStopPanicIsRecovered(t *testing.T) {
	app := New(WithModules(Module{Name: "a", Start: succeed, Stop: func(context.Context, *App, Done) {
		panic(fmt.Errorf("close failed"))
	}}))

	require.NoError(t, startApp(t, app))
	err := stopApp(t, app)
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, PhaseStop, panicErr.Phase)
	assert.EqualError(t, err, "close failed")
}

func TestAppStartTwice(t *testing.T) {
	app := New(WithModules(Module{Name: "a", Start: succeed}))
	require.NoError(t, startApp(t, app))

	exec, err := app.Start(context.Background())
	assert.Nil(t, exec)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StateRunning, app.State())
}

func TestAppInvalidStop(t *testing.T) {
	app := New(WithModules(Module{Name: "a", Start: succeed}))

	_, err := app.Stop(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, startApp(t, app))
	require.NoError(t, stopApp(t, app))

	_, err = app.Stop(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, app.Shutdown(context.Background()), ErrInvalidState)
}

func TestAppResolutionErrorsStartNothing(t *testing.T) {
	cases := map[string]struct {
		modules []Module
		names   []string
		want    error
	}{
		"cycle": {
			modules: []Module{
				{Name: "a", Dependencies: []string{"b"}, Start: succeed},
				{Name: "b", Dependencies: []string{"a"}, Start: succeed},
			},
			want: ErrCyclicDependency,
		},
		"unknown module": {
			modules: []Module{{Name: "a", Start: succeed}},
			names:   []string{"nope"},
			want:    ErrModuleNotFound,
		},
		"unknown dependency": {
			modules: []Module{{Name: "a", Dependencies: []string{"ghost"}, Start: succeed}},
			want:    ErrDependencyNotFound,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var started atomic.Int32
			mods := make([]Module, len(tc.modules))
			for i, m := range tc.modules {
				m.Start = Func(func(context.Context, *App) error {
					started.Add(1)
					return nil
				})
				mods[i] = m
			}
			app := New(WithModules(mods...))

			exec, err := app.Start(context.Background(), tc.names...)
			require.NoError(t, err)
			assert.ErrorIs(t, await(t, exec), tc.want)
			assert.Zero(t, started.Load())
			assert.Equal(t, StateFailed, app.State())
		})
	}
}

func TestAppAsyncCompletion(t *testing.T) {
	j := &journal{}
	async := func(name string, delay time.Duration) Operation {
		return func(ctx context.Context, app *App, done Done) {
			go func() {
				time.Sleep(delay)
				j.add(name)
				done(nil)
			}()
		}
	}

	app := New(WithModules(
		Module{Name: "slow", Start: async("slow", 30*time.Millisecond), Stop: async("stop slow", 0)},
		Module{Name: "fast", Start: async("fast", 0), Stop: async("stop fast", 20*time.Millisecond)},
		Module{Name: "sync", Start: j.op("sync"), Stop: j.op("stop sync")},
	))

	require.NoError(t, startApp(t, app))
	require.NoError(t, stopApp(t, app))
	assert.Equal(t, []string{"slow", "fast", "sync", "stop sync", "stop fast", "stop slow"}, j.list())
}

func TestAppAsyncFailure(t *testing.T) {
	boom := errors.New("async boom")
	app := New(WithModules(Module{Name: "m", Start: func(ctx context.Context, app *App, done Done) {
		go done(boom)
	}}))

	assert.Same(t, boom, startApp(t, app))
}

func TestAppManySynchronousModules(t *testing.T) {
	const count = 10000
	var maxDepth atomic.Int64

	mods := make([]Module, 0, count)
	for i := 0; i < count; i++ {
		m := Module{
			Name: fmt.Sprintf("m%05d", i),
			Start: func(ctx context.Context, app *App, done Done) {
				pcs := make([]uintptr, 256)
				depth := int64(runtime.Callers(0, pcs))
				for {
					cur := maxDepth.Load()
					if depth <= cur || maxDepth.CompareAndSwap(cur, depth) {
						break
					}
				}
				done(nil)
			},
		}
		mods = append(mods, m)
	}

	app := New(WithModules(mods...))
	require.NoError(t, startApp(t, app))
	assert.Len(t, app.RunningModules(), count)
	assert.Less(t, maxDepth.Load(), int64(64))
}

func TestAppContextCancelledBetweenModules(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := &journal{}
	app := New(WithModules(
		Module{Name: "a", Start: Func(func(context.Context, *App) error {
			j.add("start a")
			cancel()
			return nil
		}), Stop: j.op("stop a")},
		j.tracked("b", "a"),
	))

	exec, err := app.Start(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, await(t, exec), context.Canceled)
	assert.Equal(t, []string{"start a"}, j.list())
	assert.Equal(t, StateFailed, app.State())
	assert.Equal(t, []string{"a"}, app.RunningModules())
}

func TestAppDoubleCompletionPanics(t *testing.T) {
	app := New()
	c := newCompletion(app, "twice", PhaseStart)
	c.done(nil)

	assert.PanicsWithError(t, "exapp: module twice completed start 2 times", func() {
		c.done(nil)
	})
	defer func() {
		recovered := recover()
		violation, ok := recovered.(*ContractViolationError)
		require.True(t, ok)
		assert.ErrorIs(t, violation, ErrCompletedTwice)
		assert.Equal(t, int32(3), violation.Calls)
	}()
	c.done(nil)
}

func TestAppDoubleCompletionPropagates(t *testing.T) {
	var recovered any
	var wg sync.WaitGroup
	wg.Add(1)

	app := New(
		WithDispatcher(dispatcherFunc(func(fn func()) {
			go func() {
				defer wg.Done()
				defer func() { recovered = recover() }()
				fn()
			}()
		})),
		WithModules(Module{Name: "twice", Start: func(ctx context.Context, app *App, done Done) {
			done(nil)
			done(nil)
		}}),
	)

	_, err := app.Start(context.Background())
	require.NoError(t, err)
	wg.Wait()

	violation, ok := recovered.(*ContractViolationError)
	require.True(t, ok, "got %v", recovered)
	assert.Equal(t, "twice", violation.Module)
}

func TestAppSnapshotsDescriptors(t *testing.T) {
	j := &journal{}
	reg := NewRegistry()
	reg.MustRegister(j.tracked("a"))
	app := New(WithRegistry(reg))

	require.NoError(t, startApp(t, app))
	require.NoError(t, app.Register(Module{Name: "a", Start: succeed, Stop: j.op("replaced stop")}))
	require.NoError(t, stopApp(t, app))

	assert.Equal(t, []string{"start a", "stop a"}, j.list())
	assert.True(t, app.IsRegistered("a"))
	assert.Same(t, reg, app.Registry())
}

func TestAppRunAndShutdown(t *testing.T) {
	j := &journal{}
	app := New(WithName("svc"), WithModules(j.tracked("a")))

	require.NoError(t, app.Run(context.Background()))
	require.NoError(t, app.Shutdown(context.Background()))
	assert.Equal(t, []string{"start a", "stop a"}, j.list())
	assert.Equal(t, "svc", app.Name())
	assert.NotEmpty(t, app.ID())
}

func TestAppTransitionsAndHooks(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	var events []string

	record := func(kind string) HookFunc {
		return func(ctx context.Context, event ModuleEvent) {
			mu.Lock()
			events = append(events, fmt.Sprintf("%s %s %s %d", kind, event.Phase, event.Module, event.Index))
			mu.Unlock()
		}
	}

	boom := errors.New("boom")
	app := New(
		WithName("hooked"),
		WithHooks(Hooks{
			OnStart:   record("begin"),
			OnSuccess: record("ok"),
			OnFailure: record("fail"),
			OnTransition: func(ctx context.Context, app *App, from, to State) {
				mu.Lock()
				transitions = append(transitions, from.String()+">"+to.String())
				mu.Unlock()
			},
		}),
		WithHooks(Hooks{OnFinish: func(ctx context.Context, event ModuleEvent) {
			assert.Equal(t, "hooked", event.AppName)
			assert.False(t, event.CompletedAt.Before(event.StartedAt))
			if event.Status == StatusFailed {
				assert.Same(t, boom, event.Err)
			}
		}}),
		WithStopOnFail(true),
		WithModules(
			Module{Name: "a", Start: succeed, Stop: succeed},
			Module{Name: "quiet", Dependencies: []string{"a"}, Start: succeed},
			Module{Name: "b", Dependencies: []string{"quiet"}, Start: failWith(boom)},
		),
	)

	require.Error(t, startApp(t, app))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"begin start a 0", "ok start a 0",
		"begin start quiet 1", "ok start quiet 1",
		"begin start b 2", "fail start b 2",
		"begin stop a 0", "ok stop a 0",
	}, events)
	assert.Equal(t, []string{
		"pending>starting",
		"starting>failed",
		"failed>stopping",
		"stopping>failed",
	}, transitions)
}

func TestAppExtensionValues(t *testing.T) {
	app := New(WithConfig(Config{"db": map[string]any{"dsn": "mem"}}))
	app.Set("key", 42)

	v, ok := app.Value("key")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	app.Delete("key")
	_, ok = app.Value("key")
	assert.False(t, ok)
	assert.Contains(t, app.Config(), "db")
}

func TestAppModulesReceiveApp(t *testing.T) {
	var seen *App
	app := New(WithModules(Module{Name: "a", Start: Func(func(ctx context.Context, app *App) error {
		seen = app
		assert.Equal(t, StateStarting, app.State())
		return nil
	})}))

	require.NoError(t, startApp(t, app))
	assert.Same(t, app, seen)
}

func TestNewPanicsOnInvalidModules(t *testing.T) {
	assert.Panics(t, func() {
		New(WithModules(Module{Name: "no-start"}))
	})
}

type dispatcherFunc func(func())

func (f dispatcherFunc) Submit(fn func()) { f(fn) }
func (f dispatcherFunc) Stop()            {}
