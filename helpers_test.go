package exapp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var succeed = Func(func(context.Context, *App) error { return nil })

func failWith(err error) Operation {
	return Func(func(context.Context, *App) error { return err })
}

// journal records module operations in the order they ran.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) op(entry string) Operation {
	return Func(func(context.Context, *App) error {
		j.add(entry)
		return nil
	})
}

// tracked returns a module whose start and stop are recorded in j.
func (j *journal) tracked(name string, deps ...string) Module {
	return Module{
		Name:         name,
		Dependencies: deps,
		Start:        j.op("start " + name),
		Stop:         j.op("stop " + name),
	}
}

func await(t *testing.T, exec *Execution) error {
	t.Helper()
	require.NotNil(t, exec)
	select {
	case <-exec.Done():
		return exec.Err()
	case <-time.After(5 * time.Second):
		t.Fatal("execution did not complete")
		return nil
	}
}

func startApp(t *testing.T, app *App, names ...string) error {
	t.Helper()
	exec, err := app.Start(context.Background(), names...)
	require.NoError(t, err)
	return await(t, exec)
}

func stopApp(t *testing.T, app *App) error {
	t.Helper()
	exec, err := app.Stop(context.Background())
	require.NoError(t, err)
	return await(t, exec)
}
