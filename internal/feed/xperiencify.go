package feed

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// Xperiencify ingests the course platform's student export. Progress
// shows up as accumulated tags ("Registered", "Day 1 Complete", ...);
// every recognized tag marks its milestone and the rider advances to the
// furthest stage the tags support, never backwards.
type Xperiencify struct {
	fields reconcile.FieldMap
}

// NewXperiencify creates the course export feed.
func NewXperiencify() *Xperiencify {
	return &Xperiencify{
		fields: reconcile.DefaultFieldMap().
			WithTimestamp("last active", "enrolled at", "date").
			WithExtra("tags", "tags", "tag", "course tags").
			WithExtra("points", "points", "xp", "score"),
	}
}

func (x *Xperiencify) Name() string { return "xperiencify" }
func (x *Xperiencify) Phase() Phase { return PhaseMilestone }

func (x *Xperiencify) Ingest(ctx context.Context, env *Env) error {
	rows, err := env.Rows(ctx, x.Name())
	if err != nil {
		return err
	}
	log := zap.L().With(zap.String("feed", x.Name()))

	for _, row := range rows {
		env.Seen()

		if row.Empty() {
			env.Skip(model.SkipEmptyRow)
			continue
		}

		id, err := reconcile.Resolve(row, x.fields)
		if err != nil {
			env.Skip(model.SkipNoIdentity)
			log.Debug("row skipped", zap.Error(err))
			continue
		}

		r := env.Riders.GetOrCreate(id.Key, id.First, id.Last)

		// Students appear in this export at all, so they are at least
		// registered even before any progress tag lands.
		ts, hasTS := x.fields.Time(row)
		if hasTS {
			r.MarkMilestone(model.StageRegistered, ts, false)
		}
		r.AdvanceTo(model.StageRegistered)

		for _, stage := range parseTags(x.fields.Field(row, "tags")) {
			if hasTS {
				r.MarkMilestone(stage, ts, false)
			}
			r.AdvanceTo(stage)
		}

		if points, ok := reconcile.ParseMoney(x.fields.Field(row, "points")); ok {
			r.SetScore("course_points", points)
		}

		env.Loaded()
	}

	return nil
}

// parseTags splits a tag cell and resolves each recognized stage label,
// in ascending rank order so AdvanceTo lands on the furthest one.
func parseTags(raw string) []model.Stage {
	if raw == "" {
		return nil
	}

	found := make(map[model.Stage]bool)
	for _, tag := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' }) {
		if stage, ok := model.ParseStage(tag); ok {
			found[stage] = true
		}
	}

	var stages []model.Stage
	for _, s := range model.Stages() {
		if found[s] {
			stages = append(stages, s)
		}
	}
	return stages
}
