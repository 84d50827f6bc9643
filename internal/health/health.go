// Package health aggregates readiness checks for the engine's
// dependencies (database, ML scorer) behind a single registry.
package health

import (
	"context"
	"sync"
)

// Status is the result of probing one dependency.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes a single dependency.
type Checker func(ctx context.Context) Status

type probe struct {
	name string
	fn   Checker
}

// Registry holds named checkers and runs them on demand. Checks run in
// registration order so health output stays stable across calls.
type Registry struct {
	mu     sync.RWMutex
	probes []probe
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named checker to the registry.
func (r *Registry) Register(name string, fn Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes = append(r.probes, probe{name: name, fn: fn})
}

// CheckAll runs every registered checker. The aggregate is healthy only
// when all individual checks pass; an empty registry is healthy.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	probes := append([]probe(nil), r.probes...)
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(probes))
	for _, p := range probes {
		st := p.fn(ctx)
		if !st.Healthy {
			healthy = false
		}
		statuses = append(statuses, st)
	}
	return healthy, statuses
}
