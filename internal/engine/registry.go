package engine

import (
	"sync"

	"github.com/weir-lab/project-weir/internal/core/aggregation"
)

// Registry holds the named aggregation definitions. Read-mostly after
// startup: a plain reader/writer lock is enough. It never touches window
// buffers; the engine mediates the force-close on unregister.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*aggregation.Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*aggregation.Definition)}
}

// Register adds a definition. Fails with DuplicateDefinitionError if the
// name is already taken.
func (r *Registry) Register(def *aggregation.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		return &aggregation.DuplicateDefinitionError{Name: def.Name}
	}
	r.defs[def.Name] = def
	return nil
}

// Remove deletes the definition and returns it. Fails with
// UnknownDefinitionError if the name was never registered.
func (r *Registry) Remove(name string) (*aggregation.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, exists := r.defs[name]
	if !exists {
		return nil, &aggregation.UnknownDefinitionError{Name: name}
	}
	delete(r.defs, name)
	return def, nil
}

// Get returns the definition with the given name.
func (r *Registry) Get(name string) (*aggregation.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.defs[name]
	if !exists {
		return nil, &aggregation.UnknownDefinitionError{Name: name}
	}
	return def, nil
}

// List returns all registered definitions.
func (r *Registry) List() []*aggregation.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*aggregation.Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	return out
}
