package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podium-performance/funnel-cli/internal/model"
)

func riderAt(key string, stage model.Stage) model.Rider {
	r := model.NewRider(key, "Test", "Rider")
	r.Stage = stage
	return *r
}

func TestBuild_CountsAndRevenue(t *testing.T) {
	client := riderAt("client@example.com", model.StageClient)
	client.SaleValue = 6000
	freeClient := riderAt("deposit@example.com", model.StageClient) // no sale value recorded
	call := riderAt("call@example.com", model.StageCallBooked)
	contact := riderAt("contact@example.com", model.StageContact)
	slug := *model.NewRider("no_email_sam_lowes", "Sam", "Lowes")

	f := New(DefaultConfig()).Build(
		[]model.Rider{client, freeClient, call, contact, slug},
		time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	)

	assert.Equal(t, 5, f.Riders)
	assert.Equal(t, 1, f.Placeholders)
	assert.Equal(t, 2, f.ByStage[model.StageClient])

	// 6000 recorded + 4000 assumed for the unvalued client.
	assert.InDelta(t, 10000, f.Revenue.Closed, 1e-9)
	// One booked call at the default close rate.
	assert.InDelta(t, 4000*0.25, f.Revenue.Pipeline, 1e-9)
	assert.InDelta(t, 10000.0/15000*100, f.Revenue.ProgressPct, 1e-9)
}

func TestBuild_ReachedIsCumulative(t *testing.T) {
	day2 := riderAt("day2@example.com", model.StageDay2)
	contact := riderAt("contact@example.com", model.StageContact)

	f := New(DefaultConfig()).Build([]model.Rider{day2, contact}, time.Now())

	// The day-2 rider also counts as having reached every earlier stage.
	assert.Equal(t, 1, f.Reached[model.StageDay2])
	assert.Equal(t, 1, f.Reached[model.StageRegistered])
	assert.Equal(t, 1, f.Reached[model.StageReplied])
	assert.Equal(t, 2, f.Reached[model.StageContact])
	assert.Equal(t, 0, f.Reached[model.StageCallBooked])
}

func TestBuild_NotAFitOnlyCountsMilestones(t *testing.T) {
	dropped := riderAt("dropped@example.com", model.StageNotAFit)
	dropped.MarkMilestone(model.StageRegistered, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), false)

	f := New(DefaultConfig()).Build([]model.Rider{dropped}, time.Now())

	// Terminal rank outranks client but proves nothing about progress.
	assert.Equal(t, 0, f.Reached[model.StageClient])
	assert.Equal(t, 0, f.Reached[model.StageContact])
	assert.Equal(t, 1, f.Reached[model.StageRegistered])
}

func TestBuild_ZeroConfigFallsBackToDefaults(t *testing.T) {
	f := New(Config{}).Build(nil, time.Now())

	assert.Equal(t, 15000.0, f.Revenue.Target)
	assert.Equal(t, 4, f.Targets.Clients)
}

func TestDailyStats_FromFunnel(t *testing.T) {
	client := riderAt("client@example.com", model.StageClient)
	client.SaleValue = 4000

	now := time.Date(2026, 3, 14, 18, 45, 0, 0, time.UTC)
	f := New(DefaultConfig()).Build([]model.Rider{client}, now)

	stats := f.DailyStats()
	assert.True(t, stats.Date.Equal(now))
	assert.Equal(t, 1, stats.Riders)
	assert.Equal(t, 1, stats.Clients)
	assert.InDelta(t, 4000, stats.Revenue, 1e-9)
	require.NotNil(t, stats.ByStage)
	assert.Equal(t, 1, stats.ByStage[model.StageClient])
}
