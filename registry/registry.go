// Package registry holds the set of available models per provider, their
// capability flags and limits, and selection logic.
//
// The registry is read-mostly: populated once at startup (built-in catalog,
// optionally a YAML file) and then shared read-only across all concurrent
// requests.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

// Capability is a bitmask of model features.
type Capability uint32

const (
	// CapTools marks models that support tool/function calling.
	CapTools Capability = 1 << iota
	// CapVision marks models that accept image input.
	CapVision
	// CapThinking marks models that emit reasoning output.
	CapThinking
	// CapCaching marks models that support prompt caching.
	CapCaching
)

// Model describes one registered model. Immutable after registration;
// looked up by id, never mutated.
type Model struct {
	ID              string
	DisplayName     string
	Provider        string
	Caps            Capability
	ContextWindow   int
	MaxOutputTokens int64
}

// Supports reports whether the model has every capability in cap.
func (m Model) Supports(cap Capability) bool {
	return m.Caps&cap == cap
}

// ErrNotFound is returned by Resolve for unknown model ids.
var ErrNotFound = errors.New("model not found")

// Registry is the model catalog. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Model
	order []string // registration order, for stable listings
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]Model)}
}

// Register adds or replaces a model. Idempotent by id: registering the same
// id again overwrites the previous entry without changing its position.
func (r *Registry) Register(m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[m.ID]; !exists {
		r.order = append(r.order, m.ID)
	}
	r.byID[m.ID] = m
}

// Resolve looks up a model by id.
func (r *Registry) Resolve(id string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return m, nil
}

// List returns the models for one provider in registration order. An empty
// provider lists everything.
func (r *Registry) List(provider string) []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Model
	for _, id := range r.order {
		m := r.byID[id]
		if provider == "" || m.Provider == provider {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
