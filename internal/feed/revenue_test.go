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

func TestRevenueLog_SumsPerRider(t *testing.T) {
	env := testEnv()
	env.Sources.SetRows("revenue_log", []reconcile.Row{
		testRow("timestamp", "01/02/2026 09:00:00", "rider", "jane@example.com", "amount", "£2,000", "note", "deposit"),
		testRow("timestamp", "01/03/2026 09:00:00", "rider", "jane@example.com", "amount", "2000"),
		testRow("timestamp", "15/02/2026 09:00:00", "rider", "andy@example.com", "amount", "£4,000"),
	})

	require.NoError(t, NewRevenueLog().Ingest(context.Background(), env))

	jane, _ := env.Riders.Get("jane@example.com")
	assert.Equal(t, 4000.0, jane.SaleValue)
	assert.Equal(t, model.StageClient, jane.Stage)
	assert.Equal(t, "deposit", jane.Notes)

	at, ok := jane.Milestone(model.StageClient)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC), at, "client milestone dates from the first payment")

	andy, _ := env.Riders.Get("andy@example.com")
	assert.Equal(t, 4000.0, andy.SaleValue)
}

func TestRevenueLog_ReplayIsIdempotent(t *testing.T) {
	rows := []reconcile.Row{
		testRow("timestamp", "01/02/2026 09:00:00", "rider", "jane@example.com", "amount", "1500"),
	}

	env := testEnv()
	env.Sources.SetRows("revenue_log", rows)
	require.NoError(t, NewRevenueLog().Ingest(context.Background(), env))
	require.NoError(t, NewRevenueLog().Ingest(context.Background(), env))

	r, _ := env.Riders.Get("jane@example.com")
	assert.Equal(t, 1500.0, r.SaleValue, "the total is recomputed, not accumulated")
}

func TestRevenueLog_BadAmountSkipped(t *testing.T) {
	env := testEnv()
	env.Sources.SetRows("revenue_log", []reconcile.Row{
		testRow("timestamp", "01/02/2026 09:00:00", "rider", "jane@example.com", "amount", "a grand"),
		testRow("timestamp", "02/02/2026 09:00:00", "rider", "", "amount", "500"),
	})

	require.NoError(t, NewRevenueLog().Ingest(context.Background(), env))

	assert.Equal(t, 0, env.Riders.Len())
	assert.Equal(t, 1, env.Report.SkipReasons[model.SkipBadValue])
	assert.Equal(t, 1, env.Report.SkipReasons[model.SkipBadEntry])
}
