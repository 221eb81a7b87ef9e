package engine

import (
	"context"

	"github.com/olivier-w/zinc/internal/services"
)

// Registry holds the configured engines in registration order.
type Registry struct {
	order   []string
	engines map[string]Engine
}

// NewRegistry builds a registry from the given engines. Duplicate ids are a
// programming error and the later registration wins.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine, len(engines))}
	for _, e := range engines {
		if _, seen := r.engines[e.ID()]; !seen {
			r.order = append(r.order, e.ID())
		}
		r.engines[e.ID()] = e
	}
	return r
}

// Resolve returns the engine registered under id.
func (r *Registry) Resolve(id string) (Engine, error) {
	if e, ok := r.engines[id]; ok {
		return e, nil
	}
	return nil, services.Wrap(services.ErrNotFound, "", "engine", "unknown engine "+id, nil)
}

// List returns engines in registration order.
func (r *Registry) List() []Engine {
	out := make([]Engine, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.engines[id])
	}
	return out
}

// Describe snapshots every engine's identity, GPU state, and model
// installation status. Recomputed on demand rather than cached since models
// can be installed and hardware can appear between calls.
func (r *Registry) Describe(ctx context.Context) []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		e := r.engines[id]
		out = append(out, Descriptor{
			ID:           e.ID(),
			Name:         e.Name(),
			Description:  e.Description(),
			GPURequired:  e.GPURequired(),
			GPUAvailable: e.GPUAvailable(ctx),
			Languages:    e.Languages(),
			Models:       e.Models(),
		})
	}
	return out
}
