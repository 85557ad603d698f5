package models

import "sync"

// Registry maps index suffixes to their SearchableType collaborators so the
// HTTP layer can resolve a type name from a request into model-layer hooks.
type Registry struct {
	mu    sync.RWMutex
	types map[string]SearchableType
}

// NewRegistry creates an empty type registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]SearchableType)}
}

// Register adds or replaces the collaborator for its index suffix.
func (r *Registry) Register(t SearchableType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.IndexSuffix()] = t
}

// Lookup returns the collaborator for the given suffix, if registered.
func (r *Registry) Lookup(suffix string) (SearchableType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[suffix]
	return t, ok
}
