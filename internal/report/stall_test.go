package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podium-performance/funnel-cli/internal/model"
)

func TestStalled_FindsOverdueStages(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	stuck := riderAt("stuck@example.com", model.StageRegistered)
	stuck.MarkMilestone(model.StageRegistered, now.Add(-5*24*time.Hour), false)

	fresh := riderAt("fresh@example.com", model.StageRegistered)
	fresh.MarkMilestone(model.StageRegistered, now.Add(-12*time.Hour), false)

	got := Stalled([]model.Rider{stuck, fresh}, defaultStallDays, now)
	require.Len(t, got, 1)
	assert.Equal(t, "stuck@example.com", got[0].Key)
	assert.Equal(t, model.StageRegistered, got[0].Stage)
	assert.Equal(t, 5, got[0].Days)
}

func TestStalled_SkipsTerminalAndDisqualified(t *testing.T) {
	now := time.Now().UTC()
	old := now.Add(-30 * 24 * time.Hour)

	client := riderAt("client@example.com", model.StageClient)
	client.MarkMilestone(model.StageClient, old, false)

	dropped := riderAt("dropped@example.com", model.StageMessaged)
	dropped.Disqualified = true
	dropped.MarkMilestone(model.StageMessaged, old, false)

	noMilestone := riderAt("unknown@example.com", model.StageMessaged)

	got := Stalled([]model.Rider{client, dropped, noMilestone}, defaultStallDays, now)
	assert.Empty(t, got)
}

func TestStalled_SortsLongestFirst(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	week := riderAt("week@example.com", model.StageLinkSent)
	week.MarkMilestone(model.StageLinkSent, now.Add(-7*24*time.Hour), false)

	month := riderAt("month@example.com", model.StageLinkSent)
	month.MarkMilestone(model.StageLinkSent, now.Add(-30*24*time.Hour), false)

	got := Stalled([]model.Rider{week, month}, defaultStallDays, now)
	require.Len(t, got, 2)
	assert.Equal(t, "month@example.com", got[0].Key)
	assert.Equal(t, 30, got[0].Days)
	assert.Equal(t, "week@example.com", got[1].Key)
}

func TestStallThresholds_ConfigOverride(t *testing.T) {
	rp := New(Config{StallDays: map[string]int{"link sent": 10, "bogus stage": 1}})

	thresholds := rp.stallThresholds()
	assert.Equal(t, 10, thresholds[model.StageLinkSent])
	// Unrecognized labels are ignored; other defaults survive.
	assert.Equal(t, defaultStallDays[model.StageRegistered], thresholds[model.StageRegistered])
}
