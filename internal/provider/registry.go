package provider

import "github.com/rotisserie/eris"

// Registry maps adapter names to their implementations. Iteration follows
// registration order so runs process providers deterministically.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter to the registry. Re-registering a name replaces
// the adapter without changing its position.
func (r *Registry) Register(a Adapter) {
	name := a.Name()
	if _, ok := r.adapters[name]; !ok {
		r.order = append(r.order, name)
	}
	r.adapters[name] = a
}

// Get returns an adapter by name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, eris.Errorf("provider: unknown adapter %q", name)
	}
	return a, nil
}

// All returns all adapters in registration order.
func (r *Registry) All() []Adapter {
	result := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.adapters[name])
	}
	return result
}

// Configured returns the adapters with credentials present, in registration
// order.
func (r *Registry) Configured() []Adapter {
	var result []Adapter
	for _, a := range r.All() {
		if a.Configured() {
			result = append(result, a)
		}
	}
	return result
}

// AllNames returns all registered adapter names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
