package feed

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// logEntry is one parsed line of an append-only manual log.
type logEntry struct {
	at  time.Time
	row reconcile.Row
}

// sortedEntries orders log rows by their timestamp, oldest first. Rows
// without a parseable timestamp keep their file position at the front,
// so a hand-edited log without dates still replays in written order.
func sortedEntries(rows []reconcile.Row, fm reconcile.FieldMap) []logEntry {
	entries := make([]logEntry, len(rows))
	for i, row := range rows {
		at, _ := fm.Time(row)
		entries[i] = logEntry{at: at, row: row}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].at.Before(entries[j].at)
	})
	return entries
}

// ManualUpdates replays the manual stage log. Every entry is an explicit
// user action: the stage is set unconditionally, and the milestone
// timestamp overwrites whatever automatic inference recorded.
type ManualUpdates struct {
	fields reconcile.FieldMap
}

// NewManualUpdates creates the manual stage log feed.
func NewManualUpdates() *ManualUpdates {
	return &ManualUpdates{
		fields: reconcile.FieldMap{
			Timestamp: []string{"timestamp", "date", "at"},
			Extra: map[string][]string{
				"rider": {"rider", "key", "identity", "email"},
				"stage": {"stage", "status"},
			},
		},
	}
}

func (m *ManualUpdates) Name() string { return "manual_updates" }
func (m *ManualUpdates) Phase() Phase { return PhaseManual }

func (m *ManualUpdates) Ingest(ctx context.Context, env *Env) error {
	rows, err := env.Rows(ctx, m.Name())
	if err != nil {
		return err
	}
	log := zap.L().With(zap.String("feed", m.Name()))

	for _, entry := range sortedEntries(rows, m.fields) {
		env.Seen()
		row := entry.row

		if row.Empty() {
			env.Skip(model.SkipEmptyRow)
			continue
		}

		key := m.fields.Field(row, "rider")
		if key == "" {
			env.Skip(model.SkipBadEntry)
			log.Warn("log entry without rider key")
			continue
		}

		stage, ok := model.ParseStage(m.fields.Field(row, "stage"))
		if !ok {
			env.Skip(model.SkipBadEntry)
			log.Warn("log entry with unknown stage",
				zap.String("rider", key),
				zap.String("stage", m.fields.Field(row, "stage")),
			)
			continue
		}

		r := env.Riders.GetOrCreate(key, "", "")
		r.ForceStage(stage)
		if !entry.at.IsZero() {
			r.MarkMilestone(stage, entry.at, true)
		}

		env.Loaded()
	}

	return nil
}
