package strategy

import (
	"fmt"
	"sync"
)

// Registry manages the set of enabled evaluators. Registration order is
// preserved: the engine runs evaluators in the order they were registered so
// cycle output ordering is deterministic. New strategies are reviewable
// additions here, never runtime-injected code.
type Registry struct {
	mu    sync.RWMutex
	order []string
	evals map[string]Evaluator
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{evals: make(map[string]Evaluator)}
}

// Register adds an evaluator. Registering an already-present name replaces
// the evaluator but keeps its original position in the order.
func (r *Registry) Register(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := e.Name()
	if _, ok := r.evals[name]; !ok {
		r.order = append(r.order, name)
	}
	r.evals[name] = e
}

// Get retrieves an evaluator by name.
func (r *Registry) Get(name string) (Evaluator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evals[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", name)
	}
	return e, nil
}

// List returns all registered evaluators in registration order.
func (r *Registry) List() []Evaluator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Evaluator, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.evals[name])
	}
	return out
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
