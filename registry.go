package exapp

import (
	"fmt"
	"sync"
)

// Registry maps module names to descriptors. Names keep the position of their
// first registration; registering a name again replaces its descriptor.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
	names   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register validates and stores each module in order. Registration stops at
// the first invalid descriptor; modules before it remain registered.
func (r *Registry) Register(mods ...Module) error {
	for i, m := range mods {
		if err := m.Validate(); err != nil {
			if len(mods) == 1 {
				return err
			}
			return fmt.Errorf("module [%d]: %w", i, err)
		}
		r.store(m.clone())
	}
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(mods ...Module) {
	if err := r.Register(mods...); err != nil {
		panic(err)
	}
}

func (r *Registry) store(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[m.Name]; !exists {
		r.names = append(r.names, m.Name)
	}
	r.modules[m.Name] = m
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	if !ok {
		return Module{}, false
	}
	return m.clone(), true
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[name]
	return ok
}

// Names returns registered module names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

func (r *Registry) snapshot() (map[string]Module, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := make(map[string]Module, len(r.modules))
	for name, m := range r.modules {
		clone[name] = m
	}
	return clone, append([]string(nil), r.names...)
}
