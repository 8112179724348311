package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

func TestRiderDetails_OverwritesFields(t *testing.T) {
	env := testEnv()
	r := env.Riders.GetOrCreate("jane@example.com", "Jayne", "")
	r.Championship = "BSB"

	env.Sources.SetRows("rider_details", []reconcile.Row{
		testRow("timestamp", "01/02/2026 09:00:00", "rider", "jane@example.com", "field", "first_name", "value", "Jane"),
		testRow("timestamp", "02/02/2026 09:00:00", "rider", "jane@example.com", "field", "championship", "value", "British Supersport"),
	})

	require.NoError(t, NewRiderDetails().Ingest(context.Background(), env))

	assert.Equal(t, "Jane", r.FirstName)
	assert.Equal(t, "British Supersport", r.Championship)
}

func TestRiderDetails_LastEditWins(t *testing.T) {
	env := testEnv()
	env.Sources.SetRows("rider_details", []reconcile.Row{
		testRow("timestamp", "05/02/2026 09:00:00", "rider", "jane@example.com", "field", "bike", "value", "ZX-6R"),
		testRow("timestamp", "01/02/2026 09:00:00", "rider", "jane@example.com", "field", "bike", "value", "R6"),
	})

	require.NoError(t, NewRiderDetails().Ingest(context.Background(), env))

	r, _ := env.Riders.Get("jane@example.com")
	assert.Equal(t, "ZX-6R", r.Bike)
}

func TestRiderDetails_BadEntriesSkipped(t *testing.T) {
	env := testEnv()
	env.Sources.SetRows("rider_details", []reconcile.Row{
		testRow("timestamp", "01/02/2026 09:00:00", "rider", "jane@example.com", "field", "shoe size", "value", "9"),
		testRow("timestamp", "02/02/2026 09:00:00", "rider", "jane@example.com", "field", "", "value", "x"),
		testRow("timestamp", "03/02/2026 09:00:00", "rider", "jane@example.com", "field", "sale value", "value", "not money"),
		testRow("timestamp", "04/02/2026 09:00:00", "rider", "jane@example.com", "field", "notes", "value", "prefers evening calls"),
	})

	require.NoError(t, NewRiderDetails().Ingest(context.Background(), env))

	r, _ := env.Riders.Get("jane@example.com")
	assert.Equal(t, "prefers evening calls", r.Notes)
	assert.Equal(t, 1, env.Report.Loaded)
	assert.Equal(t, 1, env.Report.SkipReasons[model.SkipBadEntry])
	assert.Equal(t, 2, env.Report.SkipReasons[model.SkipBadValue])
}

func TestRiderDetails_StageEditIsUnconditional(t *testing.T) {
	env := testEnv()
	r := env.Riders.GetOrCreate("jane@example.com", "", "")
	r.ForceStage(model.StageNotAFit)

	env.Sources.SetRows("rider_details", []reconcile.Row{
		testRow("timestamp", "01/02/2026 09:00:00", "rider", "jane@example.com", "field", "stage", "value", "replied"),
	})
	require.NoError(t, NewRiderDetails().Ingest(context.Background(), env))

	assert.Equal(t, model.StageReplied, r.Stage)
}
