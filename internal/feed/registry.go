package feed

import (
	"slices"

	"github.com/rotisserie/eris"

	"github.com/podium-performance/funnel-cli/internal/config"
)

// Registry maps feed names to their implementations, in ingestion order.
type Registry struct {
	feeds map[string]Feed
	order []string
}

// NewRegistry creates a registry populated with every standard feed, in
// pipeline order. Feeds listed in cfg.Feeds.Disabled are left out.
// Custom manifest scans and API-backed feeds register afterwards.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{feeds: make(map[string]Feed)}

	disabled := func(name string) bool {
		return slices.Contains(cfg.Feeds.Disabled, name)
	}

	// Milestone feeds, least to most specific.
	all := []Feed{
		NewCRMContacts(),
		NewFlowProfile(),
		NewMindsetQuiz(),
		NewSleepTest(),
		NewRaceReviews(),
		NewBlueprint(),
		NewXperiencify(),
		NewDay1(),
		NewDay2(),
		NewStrategyCalls(),

		// Manual append logs.
		NewManualUpdates(),
		NewRiderDetails(),
		NewRevenueLog(),

		// Enrichment scans.
		NewRiderDB(),
		NewFBHistory(cfg.Outreach.SenderName),

		// Authoritative master, always last.
		NewMaster(),
	}

	for _, f := range all {
		if disabled(f.Name()) {
			continue
		}
		r.Register(f)
	}

	return r
}

// Register adds a feed to the registry. Registration order within a
// phase is ingestion order.
func (r *Registry) Register(f Feed) {
	name := f.Name()
	r.feeds[name] = f
	r.order = append(r.order, name)
}

// Get returns a feed by name.
func (r *Registry) Get(name string) (Feed, error) {
	f, ok := r.feeds[name]
	if !ok {
		return nil, eris.Errorf("feed: unknown feed %q", name)
	}
	return f, nil
}

// Select returns the feeds matching the given criteria, always in
// pipeline order regardless of how names were passed: ingestion order is
// load-bearing for the override semantics.
func (r *Registry) Select(phase *Phase, names []string) ([]Feed, error) {
	for _, name := range names {
		if _, err := r.Get(name); err != nil {
			return nil, err
		}
	}

	var result []Feed
	for _, f := range r.All() {
		if phase != nil && f.Phase() != *phase {
			continue
		}
		if len(names) > 0 && !slices.Contains(names, f.Name()) {
			continue
		}
		result = append(result, f)
	}
	return result, nil
}

// All returns all feeds sorted by phase, registration order within a
// phase.
func (r *Registry) All() []Feed {
	result := make([]Feed, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.feeds[name])
	}
	slices.SortStableFunc(result, func(a, b Feed) int {
		return int(a.Phase()) - int(b.Phase())
	})
	return result
}

// AllNames returns all registered feed names in pipeline order.
func (r *Registry) AllNames() []string {
	all := r.All()
	out := make([]string, len(all))
	for i, f := range all {
		out[i] = f.Name()
	}
	return out
}
