package exapp

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrModuleNotFound indicates a requested module is not registered.
	ErrModuleNotFound = errors.New("exapp: module not found")
	// ErrDependencyNotFound indicates a module depends on an unregistered module.
	ErrDependencyNotFound = errors.New("exapp: dependency not found")
	// ErrCyclicDependency indicates the requested modules depend on each other.
	ErrCyclicDependency = errors.New("exapp: cyclic dependency")
)

// ResolveError describes why a start order could not be computed.
type ResolveError struct {
	// Kind is one of ErrModuleNotFound, ErrDependencyNotFound or ErrCyclicDependency.
	Kind error
	// Module is the requested module, or the module owning a missing dependency.
	Module string
	// Dependency is the missing dependency name.
	Dependency string
	// Unresolved lists the modules left over when a cycle was detected.
	Unresolved []string
}

func (e *ResolveError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrDependencyNotFound):
		return fmt.Sprintf("%v: %s depends on %s", e.Kind, e.Module, e.Dependency)
	case errors.Is(e.Kind, ErrCyclicDependency):
		return fmt.Sprintf("%v: unable to resolve %s", e.Kind, strings.Join(e.Unresolved, ", "))
	default:
		return fmt.Sprintf("%v: %s", e.Kind, e.Module)
	}
}

func (e *ResolveError) Unwrap() error {
	return e.Kind
}

// Resolve computes the start order of the requested modules and everything
// they depend on. Passing Wildcard requests every registered module.
func Resolve(reg *Registry, names ...string) ([]string, error) {
	if reg == nil {
		return nil, errors.New("exapp: nil registry")
	}
	modules, registered := reg.snapshot()
	return resolveOrder(modules, registered, names)
}

func resolveOrder(modules map[string]Module, registered, requested []string) ([]string, error) {
	// placed is false while a name is part of the closure but not yet ordered.
	placed := make(map[string]bool, len(modules))
	pending := make([]string, 0, len(requested))

	for _, name := range requested {
		if name == Wildcard {
			for _, id := range registered {
				placed[id] = false
				pending = append(pending, id)
			}
			break
		}
	}
	for _, name := range requested {
		if name == Wildcard {
			continue
		}
		if _, seen := placed[name]; seen {
			continue
		}
		placed[name] = false
		pending = append(pending, name)
	}

	// pending grows while it is walked; every name is appended once.
	for i := 0; i < len(pending); i++ {
		name := pending[i]
		m, ok := modules[name]
		if !ok {
			return nil, &ResolveError{Kind: ErrModuleNotFound, Module: name}
		}
		for _, dep := range m.Dependencies {
			if _, seen := placed[dep]; seen {
				continue
			}
			if _, ok := modules[dep]; !ok {
				return nil, &ResolveError{Kind: ErrDependencyNotFound, Module: name, Dependency: dep}
			}
			placed[dep] = false
			pending = append(pending, dep)
		}
	}

	order := make([]string, 0, len(pending))
	batch := make([]Module, 0, len(pending))
	unresolved := make([]string, 0, len(pending))

	for len(pending) > 0 {
		batch = batch[:0]
		unresolved = unresolved[:0]
		hasPriority := false

		for _, name := range pending {
			m := modules[name]
			if ready(m, placed) {
				batch = append(batch, m)
				if m.Priority != 0 {
					hasPriority = true
				}
				continue
			}
			unresolved = append(unresolved, name)
		}

		if len(batch) == 0 {
			return nil, &ResolveError{
				Kind:       ErrCyclicDependency,
				Unresolved: append([]string(nil), pending...),
			}
		}

		if hasPriority {
			sort.SliceStable(batch, func(i, j int) bool {
				return batch[i].Priority < batch[j].Priority
			})
		}

		for _, m := range batch {
			placed[m.Name] = true
			order = append(order, m.Name)
		}

		pending, unresolved = unresolved, pending
	}

	return order, nil
}

// ready reports whether every dependency was placed in an earlier round.
func ready(m Module, placed map[string]bool) bool {
	for _, dep := range m.Dependencies {
		if !placed[dep] {
			return false
		}
	}
	return true
}
