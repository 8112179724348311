package feed

import (
	"context"

	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// Day1 ingests the day-1 workshop assessment. A row only attests the
// day1_complete milestone when its completed flag is truthy; rows
// without it still register the person as a contact.
type Day1 struct {
	fields reconcile.FieldMap
}

// NewDay1 creates the day-1 assessment feed.
func NewDay1() *Day1 {
	return &Day1{
		fields: reconcile.DefaultFieldMap().
			WithTimestamp("completed at", "submitted at", "timestamp", "date").
			WithExtra("completed", "completed", "done", "finished").
			WithExtra("score", "biggest mistakes score", "score", "total score"),
	}
}

func (d *Day1) Name() string { return "day1" }
func (d *Day1) Phase() Phase { return PhaseMilestone }

func (d *Day1) Ingest(ctx context.Context, env *Env) error {
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

		if reconcile.Truthy(d.fields.Field(row, "completed")) {
			if score, ok := reconcile.ParseMoney(d.fields.Field(row, "score")); ok {
				r.SetScore("biggest_mistakes", score)
			}
			if ts, ok := d.fields.Time(row); ok {
				r.MarkMilestone(model.StageDay1, ts, false)
			}
			r.AdvanceTo(model.StageDay1)
		}

		env.Loaded()
	}

	return nil
}

// day2Pillars are the five performance pillars rated 1-5 on the day-2
// assessment. Column headers vary between export batches but always
// contain the pillar name and "rate".
var day2Pillars = []string{"mindset", "preparation", "flow", "feedback", "sponsorship"}

// Day2 ingests the day-2 workshop assessment with its pillar self-ratings.
type Day2 struct {
	fields reconcile.FieldMap
}

// NewDay2 creates the day-2 assessment feed.
func NewDay2() *Day2 {
	return &Day2{
		fields: reconcile.DefaultFieldMap().
			WithTimestamp("completed at", "submitted at", "timestamp", "date"),
	}
}

func (d *Day2) Name() string { return "day2" }
func (d *Day2) Phase() Phase { return PhaseMilestone }

func (d *Day2) Ingest(ctx context.Context, env *Env) error {
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

		for _, pillar := range day2Pillars {
			raw := row.ValueContaining(pillar, "rate")
			if raw == "" {
				continue
			}
			if score, ok := reconcile.ParseMoney(raw); ok {
				r.SetScore(pillar, score)
			}
		}

		if ts, ok := d.fields.Time(row); ok {
			r.MarkMilestone(model.StageDay2, ts, false)
		}
		r.AdvanceTo(model.StageDay2)

		env.Loaded()
	}

	return nil
}
