package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

func TestStrategyCalls_AdvancesAndDates(t *testing.T) {
	env := testEnv()
	env.Sources.SetRows("strategy_calls", []reconcile.Row{
		testRow("email", "Jane@Example.com", "first name", "Jane", "booked at", "05/03/2026 14:30:00", "phone", "07700 900123"),
	})

	require.NoError(t, NewStrategyCalls().Ingest(context.Background(), env))

	r, ok := env.Riders.Get("jane@example.com")
	require.True(t, ok)
	assert.Equal(t, model.StageCallBooked, r.Stage)
	assert.Equal(t, "07700 900123", r.Phone)

	at, ok := r.Milestone(model.StageCallBooked)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC), at)
}

func TestMilestone_NeverRegresses(t *testing.T) {
	env := testEnv()
	r := env.Riders.GetOrCreate("jane@example.com", "Jane", "")
	r.ForceStage(model.StageDay2)

	env.Sources.SetRows("flow_profile", []reconcile.Row{
		testRow("email", "jane@example.com"),
	})
	require.NoError(t, NewFlowProfile().Ingest(context.Background(), env))

	assert.Equal(t, model.StageDay2, r.Stage)
	_, ok := r.Milestone(model.StageFlowProfile)
	assert.False(t, ok, "no timestamp column, so no milestone date")
}

func TestMilestone_SkipsUnresolvableRows(t *testing.T) {
	env := testEnv()
	env.Sources.SetRows("blueprint", []reconcile.Row{
		testRow("email", "jane@example.com", "registered at", "2026-01-10T09:00:00Z"),
		testRow("notes", "no identity on this row"),
		testRow(),
	})

	require.NoError(t, NewBlueprint().Ingest(context.Background(), env))

	assert.Equal(t, 3, env.Report.TotalRows)
	assert.Equal(t, 1, env.Report.Loaded)
	assert.Equal(t, 2, env.Report.Skipped)
	assert.Equal(t, 1, env.Report.SkipReasons[model.SkipNoIdentity])
	assert.Equal(t, 1, env.Report.SkipReasons[model.SkipEmptyRow])
	assert.Equal(t, 1, env.Riders.Len())
}

func TestMilestone_NameOnlyRowsCollapse(t *testing.T) {
	env := testEnv()
	env.Sources.SetRows("flow_profile", []reconcile.Row{
		testRow("first name", "Andy", "last name", "DiBrino"),
	})
	env.Sources.SetRows("sleep_test", []reconcile.Row{
		testRow("name", "Andy DiBrino"),
	})

	require.NoError(t, NewFlowProfile().Ingest(context.Background(), env))
	require.NoError(t, NewSleepTest().Ingest(context.Background(), env))

	assert.Equal(t, 1, env.Riders.Len())
	r, ok := env.Riders.Get("andy_dibrino")
	require.True(t, ok)
	assert.True(t, r.Placeholder())
	assert.Equal(t, model.StageSleepTest, r.Stage)
}

func TestRaceReviews_EnrichWithoutAdvancing(t *testing.T) {
	env := testEnv()
	env.Sources.SetRows("race_reviews", []reconcile.Row{
		testRow(
			"email", "andy@example.com",
			"name", "Andy DiBrino",
			"championship", "MotoAmerica Super Hooligan",
			"bike", "KTM 790 Duke",
			"track", "Laguna Seca",
			"race date", "12/07/2026",
		),
	})

	require.NoError(t, NewRaceReviews().Ingest(context.Background(), env))

	r, ok := env.Riders.Get("andy@example.com")
	require.True(t, ok)
	assert.Equal(t, model.StageContact, r.Stage, "reviews are informational, stage untouched")
	assert.Equal(t, "MotoAmerica Super Hooligan", r.Championship)
	assert.Equal(t, "KTM 790 Duke", r.Bike)
	assert.Equal(t, "Laguna Seca", r.Track)

	at, ok := r.Milestone(model.StageRaceWeekend)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 7, 12, 0, 0, 0, 0, time.UTC), at)
}

func TestMilestone_FillsNeverBlanksFields(t *testing.T) {
	env := testEnv()
	r := env.Riders.GetOrCreate("jane@example.com", "Jane", "Hopkins")
	r.Phone = "07700 900123"

	env.Sources.SetRows("strategy_calls", []reconcile.Row{
		testRow("email", "jane@example.com", "phone", ""),
	})
	require.NoError(t, NewStrategyCalls().Ingest(context.Background(), env))

	assert.Equal(t, "07700 900123", r.Phone)
	assert.Equal(t, "Jane", r.FirstName)
}

func TestMilestone_AbsentSource(t *testing.T) {
	env := testEnv()
	err := NewBlueprint().Ingest(context.Background(), env)
	require.Error(t, err)
	assert.True(t, Absent(err))
}

func TestMilestone_MergeAcrossFeeds(t *testing.T) {
	env := testEnv()
	env.Sources.SetRows("flow_profile", []reconcile.Row{
		testRow("email", "jane@example.com", "first name", "Jane", "timestamp", "01/02/2026 10:00:00"),
	})
	env.Sources.SetRows("manual_updates", []reconcile.Row{
		testRow("timestamp", "03/02/2026 12:00:00", "rider", "jane@example.com", "stage", "registered"),
	})

	require.NoError(t, NewFlowProfile().Ingest(context.Background(), env))
	require.NoError(t, NewManualUpdates().Ingest(context.Background(), env))

	r, ok := env.Riders.Get("jane@example.com")
	require.True(t, ok)
	assert.Equal(t, "Jane", r.FirstName)
	assert.Equal(t, model.StageRegistered, r.Stage)
}
