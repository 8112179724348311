// Package reconcile implements the multi-source rider reconciliation
// core: row normalization, timestamp parsing, identity resolution, and
// the canonical in-memory rider registry that every feed merges into.
package reconcile

import (
	"strings"

	"github.com/podium-performance/funnel-cli/internal/model"
)

// Registry owns every canonical rider record for one reconciliation run.
// It is single-writer by construction: the orchestrator passes it to one
// feed at a time, so no locking is involved. The registry is discarded
// and rebuilt from scratch on every run.
type Registry struct {
	riders map[string]*model.Rider
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{riders: make(map[string]*model.Rider)}
}

func normalizeIdentityKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return FallbackKey
	}
	return key
}

// GetOrCreate returns the record for an identity key, creating it at the
// initial stage on first encounter. On an existing record the supplied
// names fill empty slots only; nothing else is touched. Safe to call any
// number of times per run for the same person.
func (g *Registry) GetOrCreate(key, first, last string) *model.Rider {
	key = normalizeIdentityKey(key)
	if r, ok := g.riders[key]; ok {
		r.FillName(first, last)
		return r
	}
	r := model.NewRider(key, first, last)
	g.riders[key] = r
	g.order = append(g.order, key)
	return r
}

// Get returns the record for an identity key, if present.
func (g *Registry) Get(key string) (*model.Rider, bool) {
	r, ok := g.riders[normalizeIdentityKey(key)]
	return r, ok
}

// FindBySlug returns the first rider, in encounter order, whose name
// slugifies to slug. Sources that carry no email at all use this so a
// name-only identity can attach to a rider already keyed by email.
func (g *Registry) FindBySlug(slug string) (*model.Rider, bool) {
	if r, ok := g.riders[slug]; ok {
		return r, true
	}
	for _, key := range g.order {
		r := g.riders[key]
		if Slugify(r.FullName()) == slug {
			return r, true
		}
	}
	return nil, false
}

// Len returns the number of distinct riders.
func (g *Registry) Len() int {
	return len(g.riders)
}

// Riders returns all records in first-encounter order.
func (g *Registry) Riders() []*model.Rider {
	out := make([]*model.Rider, 0, len(g.order))
	for _, key := range g.order {
		out = append(out, g.riders[key])
	}
	return out
}

// Keys returns all identity keys in first-encounter order.
func (g *Registry) Keys() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}
