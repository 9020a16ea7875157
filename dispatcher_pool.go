package exapp

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// NewPoolDispatcher returns a Dispatcher backed by a fixed-size ants pool. If
// size is zero or negative, GOMAXPROCS workers are used. Submit blocks while
// every worker is busy.
func NewPoolDispatcher(size int) (Dispatcher, error) {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
		if size <= 0 {
			size = 1
		}
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("exapp: create worker pool: %w", err)
	}
	return &poolDispatcher{pool: pool}, nil
}

type poolDispatcher struct {
	pool *ants.Pool
	once sync.Once
}

func (d *poolDispatcher) Submit(fn func()) {
	if fn == nil {
		return
	}
	// A released pool rejects work; fall back to a goroutine so the driver
	// still completes.
	if err := d.pool.Submit(fn); err != nil {
		go fn()
	}
}

func (d *poolDispatcher) Stop() {
	d.once.Do(d.pool.Release)
}
