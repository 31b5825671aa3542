package ruleengine

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry maps key names to identities. It is the bridge used by hosts that
// address keys by name (documents, HTTP requests, CLI flags); the engine itself
// only ever works with KeyID values.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]KeyID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]KeyID)}
}

// Register adds a key. Names are unique within a registry.
func (r *Registry) Register(id KeyID) error {
	if id.IsZero() {
		return ErrInvalidKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[id.Name()]; ok {
		if existing == id {
			return nil
		}
		return fmt.Errorf("%w: %q", ErrDuplicateKey, id.Name())
	}
	r.byName[id.Name()] = id
	return nil
}

// MustRegister registers every id and panics on the first failure.
func (r *Registry) MustRegister(ids ...KeyID) *Registry {
	for _, id := range ids {
		if err := r.Register(id); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the identity registered under name.
func (r *Registry) Lookup(name string) (KeyID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	return id, ok
}

// Resolve is Lookup returning ErrUnknownKey for missing names.
func (r *Registry) Resolve(name string) (KeyID, error) {
	id, ok := r.Lookup(name)
	if !ok {
		return KeyID{}, fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	return id, nil
}

// Keys returns all registered identities sorted by name.
func (r *Registry) Keys() []KeyID {
	r.mu.RLock()
	ids := make([]KeyID, 0, len(r.byName))
	for _, id := range r.byName {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.SortFunc(ids, func(a, b KeyID) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return ids
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
