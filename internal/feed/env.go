package feed

import (
	"context"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// Env is the per-run state handed to each feed: the shared rider
// registry, the run's load report, and the source set to pull rows from.
// The engine owns it; feeds only read sources and mutate riders.
type Env struct {
	Riders  *reconcile.Registry
	Report  *model.LoadReport
	Sources *SourceSet

	result *model.FeedResult
}

// NewEnv creates an Env for a run. The engine calls begin before each
// feed; tests can use the Env directly after construction.
func NewEnv(riders *reconcile.Registry, report *model.LoadReport, sources *SourceSet) *Env {
	return &Env{
		Riders:  riders,
		Report:  report,
		Sources: sources,
		result:  &model.FeedResult{},
	}
}

func (e *Env) begin(name string) *model.FeedResult {
	e.result = &model.FeedResult{Feed: name}
	return e.result
}

// Rows fetches the named feed's rows from its configured source.
func (e *Env) Rows(ctx context.Context, name string) ([]reconcile.Row, error) {
	return e.Sources.Rows(ctx, name)
}

// Seen counts one row encountered.
func (e *Env) Seen() {
	e.Report.Row()
	e.result.Rows++
}

// Loaded counts one row successfully applied to the registry.
func (e *Env) Loaded() {
	e.Report.Load()
	e.result.Loaded++
}

// Skip counts one rejected row under the given reason.
func (e *Env) Skip(reason model.SkipReason) {
	e.Report.Skip(reason)
	e.result.Skipped++
}
