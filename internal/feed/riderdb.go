package feed

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// RiderDB scans the coach's rider database export: a wide, hand-kept
// sheet whose columns drift between exports. Lookup is therefore by
// key-contains rather than exact alias. Names in this sheet are curated,
// so unlike every other automatic feed they overwrite what earlier feeds
// guessed from exports.
type RiderDB struct {
	fields reconcile.FieldMap
}

// NewRiderDB creates the rider database enrichment feed.
func NewRiderDB() *RiderDB {
	return &RiderDB{fields: reconcile.DefaultFieldMap()}
}

func (d *RiderDB) Name() string { return "rider_db" }
func (d *RiderDB) Phase() Phase { return PhaseEnrichment }

func (d *RiderDB) Ingest(ctx context.Context, env *Env) error {
	rows, err := env.Rows(ctx, d.Name())
	if err != nil {
		return err
	}
	log := zap.L().With(zap.String("feed", d.Name()))

	for _, row := range rows {
		env.Seen()

		if row.Empty() {
			env.Skip(model.SkipEmptyRow)
			continue
		}

		id, err := reconcile.Resolve(row, d.fields)
		if err != nil {
			env.Skip(model.SkipNoIdentity)
			log.Debug("row skipped", zap.Error(err))
			continue
		}

		r := env.Riders.GetOrCreate(id.Key, id.First, id.Last)

		// Curated names win over export-derived ones.
		model.Overwrite(&r.FirstName, id.First)
		model.Overwrite(&r.LastName, id.Last)

		model.Fill(&r.FacebookURL, row.ValueContaining("facebook"))
		model.Fill(&r.InstagramURL, instagramURL(row))
		model.Fill(&r.LinkedInURL, row.ValueContaining("linkedin"))
		model.Fill(&r.Phone, row.ValueContaining("phone"))
		model.Fill(&r.Championship, row.ValueContaining("championship"))

		if r.SaleValue == 0 {
			if amount, ok := reconcile.ParseMoney(row.ValueContaining("sale")); ok {
				r.SaleValue = amount
			}
		}

		if reconcile.Truthy(row.ValueContaining("client")) {
			r.AdvanceTo(model.StageClient)
		}
		if reconcile.Truthy(row.ValueContaining("not a fit")) || reconcile.Truthy(row.ValueContaining("disqualified")) {
			r.Disqualified = true
			r.ForceStage(model.StageNotAFit)
		}

		env.Loaded()
	}

	return nil
}

// instagramURL finds an Instagram link or bare handle in the row. Bare
// handles ("@fastjane" or "fastjane") become profile URLs.
func instagramURL(row reconcile.Row) string {
	v := row.ValueContaining("instagram")
	if v == "" {
		v = row.ValueContaining("username")
	}
	if v == "" {
		return ""
	}
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return v
	}
	return "https://instagram.com/" + strings.TrimPrefix(v, "@")
}
