package feed

import (
	"context"

	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// Milestone ingests a tabular source where each row attests that one
// person reached a specific funnel stage. Presence of the row is the
// signal: the rider advances to the feed's stage (never backwards), and
// the row timestamp fills the milestone date once.
type Milestone struct {
	name   string
	stage  model.Stage
	fields reconcile.FieldMap

	// copy maps feed-specific logical fields onto rider profile fields:
	// logical name in fields.Extra → ApplyField field name. Values fill
	// empty slots only.
	copy map[string]string

	// advance is false for informational side-branches that record their
	// milestone without claiming the funnel position.
	advance bool
}

func (m *Milestone) Name() string { return m.name }
func (m *Milestone) Phase() Phase { return PhaseMilestone }

func (m *Milestone) Ingest(ctx context.Context, env *Env) error {
	rows, err := env.Rows(ctx, m.name)
	if err != nil {
		return err
	}
	log := zap.L().With(zap.String("feed", m.name))

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

		if ts, ok := m.fields.Time(row); ok {
			r.MarkMilestone(m.stage, ts, false)
		}
		if m.advance {
			r.AdvanceTo(m.stage)
		}
		m.copyFields(r, row, log)

		env.Loaded()
	}

	return nil
}

func (m *Milestone) copyFields(r *model.Rider, row reconcile.Row, log *zap.Logger) {
	for logical, field := range m.copy {
		v := m.fields.Field(row, logical)
		if v == "" {
			continue
		}
		if err := reconcile.ApplyField(r, field, v, false); err != nil {
			log.Debug("field not applied", zap.String("field", field), zap.Error(err))
		}
	}
}

// NewStrategyCalls ingests strategy-call applications. Submitting the
// application is itself the milestone, so every row advances to
// strategy_call_booked.
func NewStrategyCalls() *Milestone {
	return &Milestone{
		name:  "strategy_calls",
		stage: model.StageCallBooked,
		fields: reconcile.DefaultFieldMap().
			WithTimestamp("booked at", "booking date", "timestamp", "submitted at", "date").
			WithExtra("phone", "phone", "phone number", "mobile", "contact number").
			WithExtra("championship", "championship", "series", "what do you race"),
		copy: map[string]string{
			"phone":        "phone",
			"championship": "championship",
		},
		advance: true,
	}
}

// NewBlueprint ingests Podium Contenders Blueprint registrations.
func NewBlueprint() *Milestone {
	return &Milestone{
		name:  "blueprint",
		stage: model.StageRegistered,
		fields: reconcile.DefaultFieldMap().
			WithTimestamp("registered at", "registration date", "timestamp", "created at", "date").
			WithExtra("phone", "phone", "phone number", "mobile"),
		copy:    map[string]string{"phone": "phone"},
		advance: true,
	}
}

// NewFlowProfile ingests the flow-profile lead magnet.
func NewFlowProfile() *Milestone {
	return &Milestone{
		name:    "flow_profile",
		stage:   model.StageFlowProfile,
		fields:  reconcile.DefaultFieldMap(),
		advance: true,
	}
}

// NewMindsetQuiz ingests the mindset-quiz lead magnet.
func NewMindsetQuiz() *Milestone {
	return &Milestone{
		name:    "mindset_quiz",
		stage:   model.StageMindsetQuiz,
		fields:  reconcile.DefaultFieldMap(),
		advance: true,
	}
}

// NewSleepTest ingests the sleep-test lead magnet.
func NewSleepTest() *Milestone {
	return &Milestone{
		name:    "sleep_test",
		stage:   model.StageSleepTest,
		fields:  reconcile.DefaultFieldMap(),
		advance: true,
	}
}

// NewRaceReviews ingests race-review requests. Reviews are an
// informational side-branch: the race_weekend milestone is recorded and
// the machine/track details enrich the profile, but the funnel stage is
// left alone.
func NewRaceReviews() *Milestone {
	return &Milestone{
		name:  "race_reviews",
		stage: model.StageRaceWeekend,
		fields: reconcile.DefaultFieldMap().
			WithTimestamp("race date", "timestamp", "submitted at", "date").
			WithExtra("championship", "championship", "series", "race series").
			WithExtra("bike", "bike", "motorcycle", "machine").
			WithExtra("track", "track", "circuit", "venue"),
		copy: map[string]string{
			"championship": "championship",
			"bike":         "bike",
			"track":        "track",
		},
	}
}

// NewCRMContacts ingests CRM contact exports. Contacts enter the funnel
// at its initial stage; the value of this feed is names, emails, and
// phone numbers arriving before any milestone feed mentions the person.
func NewCRMContacts() *Milestone {
	return &Milestone{
		name:  "crm_contacts",
		stage: model.StageContact,
		fields: reconcile.DefaultFieldMap().
			WithTimestamp("created date", "createddate", "created at", "date added").
			WithExtra("phone", "phone", "mobile", "mobilephone", "phone number"),
		copy:    map[string]string{"phone": "phone"},
		advance: true,
	}
}
