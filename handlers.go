package exapp

import (
	"errors"
	"fmt"
)

// Action names a one-shot application event.
type Action string

const (
	// ActionAfterStart fires after every module started successfully.
	ActionAfterStart Action = "afterStart"
	// ActionAfterStop fires after every started module stopped successfully.
	ActionAfterStop Action = "afterStop"
)

var (
	// ErrUnknownAction indicates a handler was registered for an unsupported action.
	ErrUnknownAction = errors.New("exapp: unknown action")
	// ErrActionFired indicates a handler was registered after its action fired.
	ErrActionFired = errors.New("exapp: action has already fired")
	// ErrNilHandler indicates a nil handler function was supplied.
	ErrNilHandler = errors.New("exapp: handler must not be nil")
)

// HandlerFunc receives the application and the receiver supplied at
// registration, or the application itself when none was supplied.
type HandlerFunc func(app *App, receiver any)

type handlerStatus int

const (
	handlersOpen handlerStatus = iota
	handlersFired
)

type handler struct {
	fn       HandlerFunc
	receiver any
}

type handlerList struct {
	status   handlerStatus
	handlers []handler
}

// handlerBus is not safe for concurrent use; App guards it with its mutex.
type handlerBus struct {
	lists map[Action]*handlerList
}

func newHandlerBus() handlerBus {
	return handlerBus{lists: map[Action]*handlerList{
		ActionAfterStart: {},
		ActionAfterStop:  {},
	}}
}

func (b *handlerBus) add(action Action, fn HandlerFunc, receiver any) error {
	list, ok := b.lists[action]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if fn == nil {
		return ErrNilHandler
	}
	if list.status == handlersFired {
		return fmt.Errorf("%w: %q", ErrActionFired, action)
	}
	list.handlers = append(list.handlers, handler{fn: fn, receiver: receiver})
	return nil
}

// take freezes the list for action and returns its handlers. A second take
// for the same action returns nothing.
func (b *handlerBus) take(action Action) []handler {
	list, ok := b.lists[action]
	if !ok || list.status == handlersFired {
		return nil
	}
	list.status = handlersFired
	out := list.handlers
	list.handlers = nil
	return out
}
