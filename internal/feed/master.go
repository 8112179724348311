package feed

import (
	"context"

	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// masterFields lists the person fields the master may overwrite, in
// application order. Disqualified comes after stage so a stale stage
// cell in the same row cannot resurrect a rider the master marked out.
var masterFields = []string{
	"first name",
	"last name",
	"phone",
	"facebook",
	"instagram",
	"linkedin",
	"championship",
	"bike",
	"track",
	"notes",
	"tags",
	"sale value",
	"follow up",
	"stage",
	"disqualified",
}

// Master ingests the authoritative remote master record set, last in the
// pipeline. Every non-empty master field overwrites whatever local feeds
// concluded; the stage is set unconditionally. Rows arrive from the
// hosted store already flattened to logical field names.
type Master struct {
	fields reconcile.FieldMap
}

// NewMaster creates the authoritative master feed.
func NewMaster() *Master {
	return &Master{fields: reconcile.DefaultFieldMap()}
}

func (m *Master) Name() string { return "master" }
func (m *Master) Phase() Phase { return PhaseMaster }

func (m *Master) Ingest(ctx context.Context, env *Env) error {
	rows, err := env.Rows(ctx, m.Name())
	if err != nil {
		return err
	}
	log := zap.L().With(zap.String("feed", m.Name()))

	for _, row := range rows {
		env.Seen()

		if row.Empty() {
			env.Skip(model.SkipEmptyRow)
			continue
		}

		id, err := reconcile.Resolve(row, m.fields)
		if err != nil {
			env.Skip(model.SkipNoIdentity)
			log.Debug("row skipped", zap.Error(err))
			continue
		}

		r := env.Riders.GetOrCreate(id.Key, id.First, id.Last)

		for _, field := range masterFields {
			v := row.Value(field)
			if v == "" {
				continue
			}
			if err := reconcile.ApplyField(r, field, v, true); err != nil {
				log.Warn("master field not applied",
					zap.String("rider", id.Key),
					zap.String("field", field),
					zap.Error(err),
				)
			}
		}

		env.Loaded()
	}

	return nil
}
