package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds entity type descriptors keyed by type name. Registration is
// append-only and happens at startup; lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*EntityType
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*EntityType)}
}

// Define registers an entity type and runs the definition function against
// it. Defining the same name twice panics: metadata is fixed at startup.
func (r *Registry) Define(name string, define func(*EntityType)) *EntityType {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[name]; exists {
		panic(fmt.Sprintf("schema: entity type %s already defined", name))
	}

	t := newEntityType(name, r)
	if define != nil {
		define(t)
	}
	r.types[name] = t
	return t
}

// Lookup returns the entity type registered under name.
func (r *Registry) Lookup(name string) (*EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// MustLookup returns the entity type registered under name or an error.
func (r *Registry) MustLookup(name string) (*EntityType, error) {
	if t, ok := r.Lookup(name); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
}

// TypeNames returns the registered type names in sorted order.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// defaultRegistry backs the package-level Define/Lookup convenience calls
// used by application model files.
var defaultRegistry = NewRegistry()

// Define registers an entity type in the default registry.
func Define(name string, define func(*EntityType)) *EntityType {
	return defaultRegistry.Define(name, define)
}

// Lookup resolves a type name against the default registry.
func Lookup(name string) (*EntityType, bool) {
	return defaultRegistry.Lookup(name)
}

// Default returns the default registry.
func Default() *Registry {
	return defaultRegistry
}
