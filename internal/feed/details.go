package feed

import (
	"context"

	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// RiderDetails replays the typed field-edit log: one {rider, field,
// value} tuple per line, applied with overwrite semantics because every
// line is a deliberate correction. A corrupt line is skipped; the rest
// of the log still replays.
type RiderDetails struct {
	fields reconcile.FieldMap
}

// NewRiderDetails creates the field-edit log feed.
func NewRiderDetails() *RiderDetails {
	return &RiderDetails{
		fields: reconcile.FieldMap{
			Timestamp: []string{"timestamp", "date", "at"},
			Extra: map[string][]string{
				"rider": {"rider", "key", "identity", "email"},
				"field": {"field", "attribute", "column"},
				"value": {"value", "new value"},
			},
		},
	}
}

func (d *RiderDetails) Name() string { return "rider_details" }
func (d *RiderDetails) Phase() Phase { return PhaseManual }

func (d *RiderDetails) Ingest(ctx context.Context, env *Env) error {
	rows, err := env.Rows(ctx, d.Name())
	if err != nil {
		return err
	}
	log := zap.L().With(zap.String("feed", d.Name()))

	for _, entry := range sortedEntries(rows, d.fields) {
		env.Seen()
		row := entry.row

		if row.Empty() {
			env.Skip(model.SkipEmptyRow)
			continue
		}

		key := d.fields.Field(row, "rider")
		field := d.fields.Field(row, "field")
		if key == "" || field == "" {
			env.Skip(model.SkipBadEntry)
			log.Warn("log entry missing rider or field", zap.String("rider", key))
			continue
		}

		r := env.Riders.GetOrCreate(key, "", "")
		if err := reconcile.ApplyField(r, field, d.fields.Field(row, "value"), true); err != nil {
			env.Skip(model.SkipBadValue)
			log.Warn("log entry not applied", zap.String("rider", key), zap.Error(err))
			continue
		}

		env.Loaded()
	}

	return nil
}
