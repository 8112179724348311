package model

import "time"

// SkipReason classifies why a single feed row could not be loaded.
type SkipReason string

const (
	// SkipNoIdentity marks rows carrying neither an email nor a name.
	SkipNoIdentity SkipReason = "no_identity"
	// SkipEmptyRow marks rows with no populated cells at all.
	SkipEmptyRow SkipReason = "empty_row"
	// SkipBadEntry marks structurally corrupt lines in append-only logs.
	SkipBadEntry SkipReason = "bad_entry"
	// SkipBadValue marks rows whose payload value could not be used
	// (unknown stage label, unparseable amount).
	SkipBadValue SkipReason = "bad_value"
)

// FeedResult records the outcome of one feed within a reconciliation run.
type FeedResult struct {
	Feed    string `json:"feed"`
	Rows    int    `json:"rows"`
	Loaded  int    `json:"loaded"`
	Skipped int    `json:"skipped"`
	// Absent is set when the source could not be fetched or does not
	// exist this run; the feed is treated as empty, not as a failure.
	Absent bool   `json:"absent,omitempty"`
	Err    string `json:"error,omitempty"`
}

// LoadReport aggregates ingestion accounting across a full reconciliation
// run. It is the run's observable outcome: a run with Loaded == 0 is the
// only condition treated as a hard failure.
type LoadReport struct {
	RunID       string             `json:"run_id"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	TotalRows   int                `json:"total_rows"`
	Loaded      int                `json:"loaded"`
	Skipped     int                `json:"skipped"`
	SkipReasons map[SkipReason]int `json:"skip_reasons,omitempty"`
	Feeds       []FeedResult       `json:"feeds"`
	Riders      int                `json:"riders"`
}

// Row counts one row seen by any feed.
func (r *LoadReport) Row() {
	r.TotalRows++
}

// Load counts one row successfully applied to the registry.
func (r *LoadReport) Load() {
	r.Loaded++
}

// Skip counts one rejected row under the given reason.
func (r *LoadReport) Skip(reason SkipReason) {
	r.Skipped++
	if r.SkipReasons == nil {
		r.SkipReasons = make(map[SkipReason]int)
	}
	r.SkipReasons[reason]++
}
