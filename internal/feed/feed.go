// Package feed implements the ingestion pipeline: one Feed per source,
// run in a fixed phase order by the Engine, all merging into a single
// rider registry rebuilt from scratch each run.
package feed

import (
	"context"

	"github.com/rotisserie/eris"
)

// Phase groups feeds by where they sit in the ingestion order. Later
// phases see, and may correct, the conclusions of earlier ones.
type Phase int

const (
	// PhaseMilestone covers structured milestone feeds: applications,
	// assessments, lead magnets, CRM contacts.
	PhaseMilestone Phase = iota + 1
	// PhaseManual covers the append-only local edit logs, replayed in
	// timestamp order.
	PhaseManual
	// PhaseEnrichment covers broad contact-enrichment scans over any
	// tabular file with recognizable columns.
	PhaseEnrichment
	// PhaseMaster is the authoritative remote master, applied last so it
	// overrides everything before it.
	PhaseMaster
)

// String returns the human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseMilestone:
		return "milestone"
	case PhaseManual:
		return "manual"
	case PhaseEnrichment:
		return "enrichment"
	case PhaseMaster:
		return "master"
	default:
		return "unknown"
	}
}

// ParsePhase converts a phase name into a Phase.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "milestone":
		return PhaseMilestone, nil
	case "manual":
		return PhaseManual, nil
	case "enrichment":
		return PhaseEnrichment, nil
	case "master":
		return PhaseMaster, nil
	default:
		return 0, eris.Errorf("unknown phase: %q (valid: milestone, manual, enrichment, master)", s)
	}
}

// Feed defines the interface each ingestion source must implement.
type Feed interface {
	// Name returns the unique identifier for this feed (e.g. "day1",
	// "manual_updates").
	Name() string

	// Phase returns which pipeline phase this feed ingests in.
	Phase() Phase

	// Ingest walks the feed's rows and applies them to the registry.
	// A bad row is skipped and counted, never fatal; the only errors
	// returned are source-level (absent or unreadable source).
	Ingest(ctx context.Context, env *Env) error
}
