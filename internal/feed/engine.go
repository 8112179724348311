package feed

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// ErrNoRows is returned when a run ingests zero rows across every feed.
// It is the only condition treated as a hard failure: everything else
// degrades to missing data in the load report.
var ErrNoRows = eris.New("feed: no rows ingested from any source")

// Engine orchestrates one reconciliation run: it prefetches remote
// sources, then hands a fresh registry through every selected feed in
// pipeline order. One feed's failure never stops the feeds after it.
type Engine struct {
	reg  *Registry
	srcs *SourceSet
}

// RunOpts restrict which feeds a run ingests.
type RunOpts struct {
	Phase         *Phase
	Feeds         []string
	PrefetchLimit int
}

// NewEngine creates a new reconciliation engine.
func NewEngine(reg *Registry, srcs *SourceSet) *Engine {
	return &Engine{reg: reg, srcs: srcs}
}

// Run executes one full reconciliation. It returns the rebuilt registry
// and the run's load report; the report is valid even when err is
// non-nil.
func (e *Engine) Run(ctx context.Context, opts RunOpts) (*reconcile.Registry, *model.LoadReport, error) {
	log := zap.L().With(zap.String("component", "feed.engine"))

	feeds, err := e.reg.Select(opts.Phase, opts.Feeds)
	if err != nil {
		return nil, nil, err
	}

	report := &model.LoadReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	riders := reconcile.NewRegistry()

	if len(feeds) == 0 {
		log.Info("no feeds selected")
		report.FinishedAt = time.Now().UTC()
		return riders, report, ErrNoRows
	}

	names := make([]string, len(feeds))
	for i, f := range feeds {
		names[i] = f.Name()
	}
	log.Info("starting run", zap.String("run_id", report.RunID), zap.Int("feeds", len(feeds)))

	// All remote fetches settle before ingestion starts; ordering is
	// load-bearing, so no feed may still be in flight mid-pipeline.
	e.srcs.Prefetch(ctx, names, opts.PrefetchLimit)

	env := NewEnv(riders, report, e.srcs)

	var ingested, absent, failed int
	for _, f := range feeds {
		select {
		case <-ctx.Done():
			return riders, report, ctx.Err()
		default:
		}

		fLog := log.With(zap.String("feed", f.Name()), zap.String("phase", f.Phase().String()))
		res := env.begin(f.Name())

		start := time.Now()
		err := f.Ingest(ctx, env)
		elapsed := time.Since(start)

		switch {
		case Absent(err):
			res.Absent = true
			fLog.Info("feed absent", zap.Error(err))
			absent++
		case err != nil:
			res.Err = err.Error()
			fLog.Error("feed failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			failed++
		default:
			fLog.Info("feed ingested",
				zap.Int("rows", res.Rows),
				zap.Int("loaded", res.Loaded),
				zap.Int("skipped", res.Skipped),
				zap.Duration("elapsed", elapsed),
			)
			ingested++
		}

		report.Feeds = append(report.Feeds, *res)
	}

	report.FinishedAt = time.Now().UTC()
	report.Riders = riders.Len()

	log.Info("run complete",
		zap.Int("ingested", ingested),
		zap.Int("absent", absent),
		zap.Int("failed", failed),
		zap.Int("rows", report.TotalRows),
		zap.Int("loaded", report.Loaded),
		zap.Int("skipped", report.Skipped),
		zap.Int("riders", report.Riders),
	)

	if report.Loaded == 0 {
		return riders, report, ErrNoRows
	}

	return riders, report, nil
}
