// Package health runs data-quality checks over the last reconciliation
// snapshot: did the pipeline ingest anything, is the snapshot fresh, how
// many records lack a real email, are follow-ups overdue, and is revenue
// pacing to target.
package health

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/config"
	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/report"
	"github.com/podium-performance/funnel-cli/internal/store"
)

// Status grades a single check or the whole report.
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Check is one evaluated data-quality rule.
type Check struct {
	Name    string         `json:"name"`
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Report aggregates all checks. Status is the worst individual result.
type Report struct {
	Status    Status    `json:"status"`
	CheckedAt time.Time `json:"checked_at"`
	Checks    []Check   `json:"checks"`
}

// Healthy reports whether the snapshot is servable: warnings are fine,
// failures are not.
func (r *Report) Healthy() bool {
	return r.Status != StatusFail
}

// Checker evaluates the store against configured thresholds.
type Checker struct {
	store  store.Store
	cfg    config.HealthConfig
	target float64
}

// NewChecker creates a health checker. monthlyTarget feeds the revenue
// pace check.
func NewChecker(st store.Store, cfg config.HealthConfig, monthlyTarget float64) *Checker {
	if cfg.MissingEmailRatio <= 0 {
		cfg.MissingEmailRatio = 0.5
	}
	if cfg.StallDays <= 0 {
		cfg.StallDays = 14
	}
	if monthlyTarget <= 0 {
		monthlyTarget = 15000
	}
	return &Checker{store: st, cfg: cfg, target: monthlyTarget}
}

// Run evaluates every check as of now.
func (c *Checker) Run(ctx context.Context, now time.Time) *Report {
	now = now.UTC()
	rep := &Report{Status: StatusOK, CheckedAt: now}

	rep.add(c.lastRun(ctx, now))
	rep.add(c.missingEmails(ctx))
	rep.add(c.overdueFollowUps(ctx, now))
	rep.add(c.revenuePace(ctx, now))

	if rep.Status != StatusOK {
		zap.L().Warn("health: checks degraded",
			zap.String("status", string(rep.Status)),
			zap.Int("checks", len(rep.Checks)),
		)
	}
	return rep
}

func (r *Report) add(c Check) {
	r.Checks = append(r.Checks, c)
	if rank(c.Status) > rank(r.Status) {
		r.Status = c.Status
	}
}

func rank(s Status) int {
	switch s {
	case StatusFail:
		return 2
	case StatusWarn:
		return 1
	default:
		return 0
	}
}

// lastRun fails when the pipeline has never loaded anything, loaded
// nothing last time, or has not run within the stall window.
func (c *Checker) lastRun(ctx context.Context, now time.Time) Check {
	check := Check{Name: "last_run"}

	runs, err := c.store.ListRuns(ctx, 1)
	if err != nil {
		return errored(check, err)
	}
	if len(runs) == 0 {
		check.Status = StatusWarn
		check.Message = "no reconciliation runs recorded yet"
		return check
	}

	last := runs[0]
	age := now.Sub(last.FinishedAt)
	check.Details = map[string]any{
		"run_id":   last.RunID,
		"loaded":   last.Loaded,
		"age_days": int(age.Hours() / 24),
	}

	switch {
	case last.Loaded == 0:
		check.Status = StatusFail
		check.Message = fmt.Sprintf("last run %s loaded zero rows", last.RunID)
	case age > time.Duration(c.cfg.StallDays)*24*time.Hour:
		check.Status = StatusFail
		check.Message = fmt.Sprintf("snapshot is %d days old (limit %d)",
			int(age.Hours()/24), c.cfg.StallDays)
	default:
		check.Status = StatusOK
		check.Message = fmt.Sprintf("run %s loaded %d rows", last.RunID, last.Loaded)
	}
	return check
}

// missingEmails warns when too much of the registry rests on name-slug
// placeholders: those records can never be pushed to remote email fields.
func (c *Checker) missingEmails(ctx context.Context) Check {
	check := Check{Name: "missing_emails"}

	stats, err := c.store.SnapshotStats(ctx)
	if err != nil {
		return errored(check, err)
	}
	if stats.Riders == 0 {
		check.Status = StatusWarn
		check.Message = "snapshot is empty"
		return check
	}

	ratio := float64(stats.Placeholders) / float64(stats.Riders)
	check.Details = map[string]any{
		"placeholders": stats.Placeholders,
		"riders":       stats.Riders,
		"ratio":        ratio,
	}
	if ratio > c.cfg.MissingEmailRatio {
		check.Status = StatusWarn
		check.Message = fmt.Sprintf("%.0f%% of records lack an email (threshold %.0f%%)",
			ratio*100, c.cfg.MissingEmailRatio*100)
	} else {
		check.Status = StatusOK
		check.Message = fmt.Sprintf("%d of %d records lack an email", stats.Placeholders, stats.Riders)
	}
	return check
}

func (c *Checker) overdueFollowUps(ctx context.Context, now time.Time) Check {
	check := Check{Name: "follow_ups"}

	due, err := c.store.OverdueFollowUps(ctx, now)
	if err != nil {
		return errored(check, err)
	}
	check.Details = map[string]any{"overdue": len(due)}
	if len(due) > 0 {
		check.Status = StatusWarn
		check.Message = fmt.Sprintf("%d follow-ups overdue", len(due))
	} else {
		check.Status = StatusOK
		check.Message = "no overdue follow-ups"
	}
	return check
}

// revenuePace compares month-to-date closed revenue against the elapsed
// fraction of the monthly target, using the daily stats series. Without
// history the check passes: there is nothing to measure against.
func (c *Checker) revenuePace(ctx context.Context, now time.Time) Check {
	check := Check{Name: "revenue_pace"}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	series, err := c.store.ListDailyStats(ctx, monthStart.AddDate(0, 0, -1), now)
	if err != nil {
		return errored(check, err)
	}
	if len(series) < 2 {
		check.Status = StatusOK
		check.Message = "not enough daily history for a pace reading"
		return check
	}

	mtd := series[len(series)-1].Revenue - series[0].Revenue
	if mtd < 0 {
		mtd = 0
	}
	daysInMonth := monthStart.AddDate(0, 1, -1).Day()
	expected := c.target * float64(now.Day()) / float64(daysInMonth)

	check.Details = map[string]any{
		"mtd":      mtd,
		"expected": expected,
		"target":   c.target,
	}
	if mtd < expected {
		check.Status = StatusWarn
		check.Message = fmt.Sprintf("%s closed this month, %s expected by day %d",
			report.FormatGBP(mtd), report.FormatGBP(expected), now.Day())
	} else {
		check.Status = StatusOK
		check.Message = fmt.Sprintf("%s closed this month", report.FormatGBP(mtd))
	}
	return check
}

func errored(check Check, err error) Check {
	check.Status = StatusFail
	check.Message = err.Error()
	return check
}

// StageBreakdown returns the snapshot's stage distribution in canonical
// order for dashboards.
func StageBreakdown(stats *model.DailyStats) []StageCount {
	var out []StageCount
	for _, s := range model.Stages() {
		if n := stats.ByStage[s]; n > 0 {
			out = append(out, StageCount{Stage: s, Count: n})
		}
	}
	return out
}

// StageCount pairs a stage with its occupancy.
type StageCount struct {
	Stage model.Stage `json:"stage"`
	Count int         `json:"count"`
}
