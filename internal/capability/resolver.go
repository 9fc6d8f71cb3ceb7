// Package capability resolves and caches the capability set granted to each
// role, from a static policy file or the built-in defaults.
package capability

import (
	"sync"
	"time"

	"github.com/sitehq/girder/model"
)

// PolicyEvaluator maps a role to its granted capabilities.
type PolicyEvaluator interface {
	ResolveCapabilities(role string) (model.CapabilitySet, error)
}

type cacheEntry struct {
	caps    model.CapabilitySet
	expires time.Time
}

// Resolver caches role-to-capability lookups for a configurable TTL.
type Resolver struct {
	evaluator PolicyEvaluator
	ttl       time.Duration
	mu        sync.RWMutex
	cache     map[string]cacheEntry
}

// NewResolver creates a new Resolver with the given evaluator and cache TTL.
func NewResolver(evaluator PolicyEvaluator, ttl time.Duration) *Resolver {
	return &Resolver{
		evaluator: evaluator,
		ttl:       ttl,
		cache:     make(map[string]cacheEntry),
	}
}

// Resolve returns the capability set for a role. Results are cached for the
// configured TTL.
func (r *Resolver) Resolve(role string) (model.CapabilitySet, error) {
	r.mu.RLock()
	if entry, ok := r.cache[role]; ok && time.Now().Before(entry.expires) {
		r.mu.RUnlock()
		return entry.caps, nil
	}
	r.mu.RUnlock()

	caps, err := r.evaluator.ResolveCapabilities(role)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[role] = cacheEntry{caps: caps, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return caps, nil
}

// Invalidate clears the cached capabilities for a role, forcing the next
// Resolve to consult the evaluator again.
func (r *Resolver) Invalidate(role string) {
	r.mu.Lock()
	delete(r.cache, role)
	r.mu.Unlock()
}
