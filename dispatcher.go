package exapp

// Dispatcher submits work for execution and is responsible for running
// submitted functions. The engine submits one driver function per Start or
// Stop call.
type Dispatcher interface {
	Submit(func())
	Stop()
}

// goroutineDispatcher runs every submitted function on its own goroutine.
type goroutineDispatcher struct{}

func (goroutineDispatcher) Submit(fn func()) {
	go fn()
}

func (goroutineDispatcher) Stop() {}
