package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

func TestMaster_OverwritesLocalConclusions(t *testing.T) {
	env := testEnv()
	r := env.Riders.GetOrCreate("jane@example.com", "jane92", "")
	r.AdvanceTo(model.StageDay2)
	r.Phone = "07700 900000"

	env.Sources.SetRows("master", []reconcile.Row{
		testRow(
			"email", "jane@example.com",
			"first name", "Jane",
			"last name", "Hopper",
			"phone", "07700 900123",
			"stage", "client",
		),
	})
	require.NoError(t, NewMaster().Ingest(context.Background(), env))

	assert.Equal(t, "Jane", r.FirstName)
	assert.Equal(t, "Hopper", r.LastName)
	assert.Equal(t, "07700 900123", r.Phone)
	assert.Equal(t, model.StageClient, r.Stage)
}

func TestMaster_StageAppliesBackwards(t *testing.T) {
	env := testEnv()
	r := env.Riders.GetOrCreate("jane@example.com", "Jane", "")
	r.AdvanceTo(model.StageDay2)

	env.Sources.SetRows("master", []reconcile.Row{
		testRow("email", "jane@example.com", "stage", "messaged"),
	})
	require.NoError(t, NewMaster().Ingest(context.Background(), env))

	assert.Equal(t, model.StageMessaged, r.Stage, "the master stage wins even when it is earlier")
}

func TestMaster_BlankCellsLeaveLocalValues(t *testing.T) {
	env := testEnv()
	r := env.Riders.GetOrCreate("jane@example.com", "Jane", "Hopper")
	r.Phone = "07700 900000"
	r.Championship = "British Superbikes"

	env.Sources.SetRows("master", []reconcile.Row{
		testRow("email", "jane@example.com", "phone", "", "notes", "ready for a call"),
	})
	require.NoError(t, NewMaster().Ingest(context.Background(), env))

	assert.Equal(t, "07700 900000", r.Phone)
	assert.Equal(t, "British Superbikes", r.Championship)
	assert.Equal(t, "ready for a call", r.Notes)
}

func TestMaster_DisqualifiedBeatsStaleStage(t *testing.T) {
	env := testEnv()
	env.Sources.SetRows("master", []reconcile.Row{
		testRow("email", "jane@example.com", "stage", "replied", "disqualified", "true"),
	})
	require.NoError(t, NewMaster().Ingest(context.Background(), env))

	r, _ := env.Riders.Get("jane@example.com")
	assert.True(t, r.Disqualified)
	assert.Equal(t, model.StageNotAFit, r.Stage, "the stale stage cell cannot undo the flag")
}

func TestMaster_CreatesUnknownRiders(t *testing.T) {
	env := testEnv()
	env.Sources.SetRows("master", []reconcile.Row{
		testRow("email", "new@example.com", "first name", "Nia", "sale value", "£4,000"),
	})
	require.NoError(t, NewMaster().Ingest(context.Background(), env))

	r, ok := env.Riders.Get("new@example.com")
	require.True(t, ok)
	assert.Equal(t, "Nia", r.FirstName)
	assert.Equal(t, 4000.0, r.SaleValue)
}

func TestMaster_UnknownStageCellReported(t *testing.T) {
	env := testEnv()
	env.Sources.SetRows("master", []reconcile.Row{
		testRow("email", "jane@example.com", "stage", "victory_lap", "phone", "07700 900123"),
	})
	require.NoError(t, NewMaster().Ingest(context.Background(), env))

	// A bad cell never blocks the rest of the row.
	r, _ := env.Riders.Get("jane@example.com")
	assert.Equal(t, "07700 900123", r.Phone)
	assert.Equal(t, 1, env.Report.Loaded)
}
