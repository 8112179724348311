package report

import (
	"time"

	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
)

// Config holds the revenue goal and thresholds the report is built
// against.
type Config struct {
	MonthlyRevenueTarget float64
	AverageDealValue     float64
	// Rates seeds the conversion assumptions; zero means DefaultRates.
	Rates Rates
	// StallDays overrides the per-stage stall thresholds (days). Keys
	// are stage labels in any form ParseStage accepts.
	StallDays map[string]int
}

// DefaultConfig returns the coaching programme's standing goals.
func DefaultConfig() Config {
	return Config{
		MonthlyRevenueTarget: 15000,
		AverageDealValue:     4000,
	}
}

// Revenue summarizes money closed and in the pipeline against target.
type Revenue struct {
	Target float64 `json:"target"`
	// Closed sums sale values of clients; unset values count at the
	// average deal value.
	Closed float64 `json:"closed"`
	// Pipeline weights booked calls by the call close rate.
	Pipeline    float64 `json:"pipeline"`
	Forecast    float64 `json:"forecast"`
	ProgressPct float64 `json:"progress_pct"`
}

// Funnel is the full report for one snapshot.
type Funnel struct {
	GeneratedAt  time.Time           `json:"generated_at"`
	Riders       int                 `json:"riders"`
	Placeholders int                 `json:"placeholders"`
	Disqualified int                 `json:"disqualified"`
	ByStage      map[model.Stage]int `json:"by_stage"`
	// Reached counts riders that ever got to each stage, not just the
	// ones sitting there now.
	Reached map[model.Stage]int `json:"reached"`
	Rates   Rates               `json:"rates"`
	Targets Targets             `json:"targets"`
	Revenue Revenue             `json:"revenue"`
	Stalled []StalledRider      `json:"stalled,omitempty"`
}

// Reporter builds funnel reports.
type Reporter struct {
	cfg Config
}

func New(cfg Config) *Reporter {
	if cfg.MonthlyRevenueTarget <= 0 {
		cfg.MonthlyRevenueTarget = DefaultConfig().MonthlyRevenueTarget
	}
	if cfg.AverageDealValue <= 0 {
		cfg.AverageDealValue = DefaultConfig().AverageDealValue
	}
	if cfg.Rates == (Rates{}) {
		cfg.Rates = DefaultRates()
	}
	return &Reporter{cfg: cfg}
}

// Build assembles the report for a snapshot as of now.
func (rp *Reporter) Build(riders []model.Rider, now time.Time) *Funnel {
	f := &Funnel{
		GeneratedAt: now.UTC(),
		Riders:      len(riders),
		ByStage:     make(map[model.Stage]int),
		Reached:     make(map[model.Stage]int),
	}

	for i := range riders {
		r := &riders[i]
		f.ByStage[r.Stage]++
		if r.Placeholder() {
			f.Placeholders++
		}
		if r.Disqualified {
			f.Disqualified++
		}
		countReached(f.Reached, r)
	}

	f.Rates = rp.cfg.Rates.Calibrate(f.Reached)
	f.Targets = f.Rates.Targets(rp.cfg.MonthlyRevenueTarget, rp.cfg.AverageDealValue)
	f.Revenue = rp.revenue(riders, f)
	f.Stalled = Stalled(riders, rp.stallThresholds(), now)

	zap.L().Info("report: funnel built",
		zap.Int("riders", f.Riders),
		zap.Int("clients", f.ByStage[model.StageClient]),
		zap.Float64("closed", f.Revenue.Closed),
		zap.Int("stalled", len(f.Stalled)),
	)
	return f
}

// countReached credits the rider to every stage at or below its current
// rank, plus any stage it holds a milestone for. Not-a-fit riders only
// count where they left milestone evidence: their terminal rank says
// nothing about how far they actually got.
func countReached(reached map[model.Stage]int, r *model.Rider) {
	credited := make(map[model.Stage]bool)
	if r.Stage != model.StageNotAFit {
		for _, s := range model.Stages() {
			if s == model.StageNotAFit {
				continue
			}
			if s.Rank() <= r.Stage.Rank() {
				credited[s] = true
			}
		}
	}
	for s := range r.Milestones {
		credited[s] = true
	}
	for s := range credited {
		reached[s]++
	}
}

func (rp *Reporter) revenue(riders []model.Rider, f *Funnel) Revenue {
	rev := Revenue{Target: rp.cfg.MonthlyRevenueTarget}

	for i := range riders {
		r := &riders[i]
		switch r.Stage {
		case model.StageClient:
			if r.SaleValue > 0 {
				rev.Closed += r.SaleValue
			} else {
				rev.Closed += rp.cfg.AverageDealValue
			}
		case model.StageCallBooked:
			rev.Pipeline += rp.cfg.AverageDealValue * f.Rates.CallToClient
		}
	}

	rev.Forecast = f.Rates.Forecast(f.ByStage, rp.cfg.AverageDealValue)
	if rev.Target > 0 {
		rev.ProgressPct = rev.Closed / rev.Target * 100
	}
	return rev
}

// DailyStats converts the report into the store's daily roll-up row.
func (f *Funnel) DailyStats() model.DailyStats {
	byStage := make(map[model.Stage]int, len(f.ByStage))
	for s, n := range f.ByStage {
		byStage[s] = n
	}
	return model.DailyStats{
		Date:         f.GeneratedAt,
		Riders:       f.Riders,
		Placeholders: f.Placeholders,
		Clients:      f.ByStage[model.StageClient],
		Revenue:      f.Revenue.Closed,
		ByStage:      byStage,
	}
}
