package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// RevenueLog replays the payment log. Per rider it totals every entry
// and sets sale_value to the sum (a recomputation, so replaying twice
// cannot double-count), forces the client stage, and dates the client
// milestone from the first payment.
type RevenueLog struct {
	fields reconcile.FieldMap
}

// NewRevenueLog creates the payment log feed.
func NewRevenueLog() *RevenueLog {
	return &RevenueLog{
		fields: reconcile.FieldMap{
			Timestamp: []string{"timestamp", "date", "paid at"},
			Extra: map[string][]string{
				"rider":  {"rider", "key", "identity", "email"},
				"amount": {"amount", "value", "paid", "revenue"},
				"note":   {"note", "notes", "description"},
			},
		},
	}
}

func (v *RevenueLog) Name() string { return "revenue_log" }
func (v *RevenueLog) Phase() Phase { return PhaseManual }

func (v *RevenueLog) Ingest(ctx context.Context, env *Env) error {
	rows, err := env.Rows(ctx, v.Name())
	if err != nil {
		return err
	}
	log := zap.L().With(zap.String("feed", v.Name()))

	type sale struct {
		total   float64
		firstAt time.Time
		note    string
	}
	totals := make(map[string]*sale)
	var order []string

	for _, entry := range sortedEntries(rows, v.fields) {
		env.Seen()
		row := entry.row

		if row.Empty() {
			env.Skip(model.SkipEmptyRow)
			continue
		}

		key := v.fields.Field(row, "rider")
		if key == "" {
			env.Skip(model.SkipBadEntry)
			log.Warn("payment entry without rider key")
			continue
		}

		amount, ok := reconcile.ParseMoney(v.fields.Field(row, "amount"))
		if !ok {
			env.Skip(model.SkipBadValue)
			log.Warn("payment entry with unparseable amount",
				zap.String("rider", key),
				zap.String("amount", v.fields.Field(row, "amount")),
			)
			continue
		}

		s, seen := totals[key]
		if !seen {
			s = &sale{firstAt: entry.at}
			totals[key] = s
			order = append(order, key)
		}
		s.total += amount
		if note := v.fields.Field(row, "note"); note != "" {
			s.note = note
		}

		env.Loaded()
	}

	for _, key := range order {
		s := totals[key]
		r := env.Riders.GetOrCreate(key, "", "")
		r.SaleValue = s.total
		r.ForceStage(model.StageClient)
		if !s.firstAt.IsZero() {
			r.MarkMilestone(model.StageClient, s.firstAt, false)
		}
		if s.note != "" {
			model.Fill(&r.Notes, s.note)
		}
	}

	return nil
}
