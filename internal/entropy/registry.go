package entropy

import "fmt"

// Registry is the fixed, ordered vector of entropy source handles
// sources. It is built once at construction time — no dynamic
// add/remove — and the auxiliary source is always last, since it is the
// sink for externally-injected entropy and the bootstrap seed.
type Registry struct {
	sources []Source
}

// NewRegistry builds a registry from an ordered slice of sources. aux
// must be the last element; NewRegistry does not enforce this itself
// (callers assemble the slice), but Manager construction documents the
// convention.
func NewRegistry(sources []Source) *Registry {
	r := &Registry{sources: make([]Source, len(sources))}
	copy(r.sources, sources)
	return r
}

// Len returns the number of registered sources.
func (r *Registry) Len() int { return len(r.sources) }

// Get returns the source at index i, or an error if out of range.
func (r *Registry) Get(i int) (Source, error) {
	if i < 0 || i >= len(r.sources) {
		return nil, fmt.Errorf("entropy: source index %d out of range [0,%d)", i, len(r.sources))
	}
	return r.sources[i], nil
}

// ForEach iterates sources in canonical registry order, stopping early
// if f returns an error.
func (r *Registry) ForEach(f func(i int, s Source) error) error {
	for i, s := range r.sources {
		if err := f(i, s); err != nil {
			return err
		}
	}
	return nil
}

// AuxIndex returns the index of the last (auxiliary) source, or -1 if
// the registry is empty.
func (r *Registry) AuxIndex() int {
	if len(r.sources) == 0 {
		return -1
	}
	return len(r.sources) - 1
}
