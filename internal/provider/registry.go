package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps provider names to adapters. It is filled at startup and
// frozen before the process accepts traffic.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	frozen    bool
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register %q: registry is frozen", p.Name())
	}
	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("register %q: already registered", p.Name())
	}
	r.providers[p.Name()] = p
	return nil
}

// Freeze ends the registration phase.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Registry) Lookup(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Resolve is Lookup with an error for the not-found case.
func (r *Registry) Resolve(name string) (Provider, error) {
	p, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
