package outreach

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podium-performance/funnel-cli/internal/config"
	"github.com/podium-performance/funnel-cli/internal/model"
)

// memLog is an in-memory outreach log keyed by rider and kind.
type memLog struct {
	entries map[string]model.OutreachEntry
}

func newMemLog() *memLog {
	return &memLog{entries: make(map[string]model.OutreachEntry)}
}

func (l *memLog) LastOutreach(_ context.Context, riderKey, kind string) (*model.OutreachEntry, error) {
	e, ok := l.entries[riderKey+"|"+kind]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (l *memLog) LogOutreach(_ context.Context, entry model.OutreachEntry) error {
	l.entries[entry.RiderKey+"|"+entry.Kind] = entry
	return nil
}

func riderInStage(key string, stage model.Stage, enteredAgo time.Duration, now time.Time) *model.Rider {
	r := model.NewRider(key, "Ben", "Hargreaves")
	r.ForceStage(stage)
	r.MarkMilestone(stage, now.Add(-enteredAgo), false)
	return r
}

func TestScheduler_Due_Day1AfterWindow(t *testing.T) {
	now := time.Now().UTC()
	s := NewScheduler(config.OutreachConfig{}, newMemLog())
	r := riderInStage("ben@example.com", model.StageRegistered, 25*time.Hour, now)

	kind, ok, err := s.Due(context.Background(), r, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, RescueDay1, kind)
}

func TestScheduler_Due_WindowNotElapsed(t *testing.T) {
	now := time.Now().UTC()
	s := NewScheduler(config.OutreachConfig{}, newMemLog())
	r := riderInStage("ben@example.com", model.StageRegistered, 12*time.Hour, now)

	_, ok, err := s.Due(context.Background(), r, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduler_Due_AlreadySentSkips(t *testing.T) {
	now := time.Now().UTC()
	log := newMemLog()
	require.NoError(t, log.LogOutreach(context.Background(), model.OutreachEntry{
		RiderKey: "ben@example.com", Kind: string(RescueDay1),
	}))
	s := NewScheduler(config.OutreachConfig{}, log)
	r := riderInStage("ben@example.com", model.StageRegistered, 48*time.Hour, now)

	_, ok, err := s.Due(context.Background(), r, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduler_Due_Day2AndCallWindows(t *testing.T) {
	now := time.Now().UTC()
	s := NewScheduler(config.OutreachConfig{}, newMemLog())

	kind, ok, err := s.Due(context.Background(),
		riderInStage("a@example.com", model.StageDay1, 25*time.Hour, now), now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, RescueDay2, kind)

	// Day 2 uses the shorter 12h window.
	kind, ok, err = s.Due(context.Background(),
		riderInStage("b@example.com", model.StageDay2, 13*time.Hour, now), now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, RescueCall, kind)

	_, ok, err = s.Due(context.Background(),
		riderInStage("c@example.com", model.StageDay2, 11*time.Hour, now), now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduler_Due_ConfiguredWindows(t *testing.T) {
	now := time.Now().UTC()
	s := NewScheduler(config.OutreachConfig{RescueBlueprintHrs: 48}, newMemLog())

	_, ok, err := s.Due(context.Background(),
		riderInStage("ben@example.com", model.StageRegistered, 30*time.Hour, now), now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduler_Due_SkipsDisqualified(t *testing.T) {
	now := time.Now().UTC()
	s := NewScheduler(config.OutreachConfig{}, newMemLog())
	r := riderInStage("ben@example.com", model.StageRegistered, 48*time.Hour, now)
	r.Disqualified = true

	_, ok, err := s.Due(context.Background(), r, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduler_Due_OtherStagesNeverDue(t *testing.T) {
	now := time.Now().UTC()
	s := NewScheduler(config.OutreachConfig{}, newMemLog())

	for _, stage := range []model.Stage{
		model.StageContact, model.StageMessaged, model.StageCallBooked,
		model.StageClient, model.StageNotAFit,
	} {
		_, ok, err := s.Due(context.Background(),
			riderInStage("x@example.com", stage, 100*time.Hour, now), now)
		require.NoError(t, err)
		assert.False(t, ok, "stage %s should never be due", stage)
	}
}

func TestScheduler_Due_MissingMilestone(t *testing.T) {
	now := time.Now().UTC()
	s := NewScheduler(config.OutreachConfig{}, newMemLog())
	r := model.NewRider("ben@example.com", "Ben", "Hargreaves")
	r.ForceStage(model.StageRegistered)

	_, ok, err := s.Due(context.Background(), r, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduler_DueRiders_Groups(t *testing.T) {
	now := time.Now().UTC()
	s := NewScheduler(config.OutreachConfig{}, newMemLog())
	riders := []*model.Rider{
		riderInStage("a@example.com", model.StageRegistered, 30*time.Hour, now),
		riderInStage("b@example.com", model.StageRegistered, 40*time.Hour, now),
		riderInStage("c@example.com", model.StageDay2, 13*time.Hour, now),
		riderInStage("d@example.com", model.StageContact, 100*time.Hour, now),
	}

	due, err := s.DueRiders(context.Background(), riders, now)
	require.NoError(t, err)

	assert.Len(t, due[RescueDay1], 2)
	assert.Len(t, due[RescueDay2], 0)
	assert.Len(t, due[RescueCall], 1)
}

func TestScheduler_Record_ThenNotDue(t *testing.T) {
	now := time.Now().UTC()
	log := newMemLog()
	s := NewScheduler(config.OutreachConfig{}, log)
	r := riderInStage("ben@example.com", model.StageRegistered, 30*time.Hour, now)

	require.NoError(t, s.Record(context.Background(), r, RescueDay1, "email", "subj", "body", now))

	_, ok, err := s.Due(context.Background(), r, now)
	require.NoError(t, err)
	assert.False(t, ok)

	entry := log.entries["ben@example.com|day1_rescue"]
	assert.Equal(t, "email", entry.Channel)
	assert.Equal(t, "subj", entry.Subject)
}

func TestRescueMessage_EmailFillsPlaceholders(t *testing.T) {
	r := model.NewRider("ben@example.com", "Ben", "Hargreaves")

	subject, body := RescueMessage(RescueDay1, r, "email", "Craig")

	assert.Equal(t, "You started something amazing - let's not leave it unfinished", subject)
	assert.Contains(t, body, "Hi Ben,")
	assert.Contains(t, body, "See you on the other side,\nCraig")
	assert.NotContains(t, body, "{first_name}")
	assert.NotContains(t, body, "{coach_name}")
}

func TestRescueMessage_DMChannel(t *testing.T) {
	r := model.NewRider("ben@example.com", "Ben", "Hargreaves")

	subject, body := RescueMessage(RescueCall, r, "messenger", "Craig")

	assert.Empty(t, subject)
	assert.Contains(t, body, "Hey Ben!")
	assert.Contains(t, body, "Strategy Call")
}

func TestRescueMessage_FallbackFirstName(t *testing.T) {
	r := model.NewRider("mystery@example.com", "", "")

	_, body := RescueMessage(RescueDay2, r, "email", "Craig")

	assert.Contains(t, body, "Hi there,")
}

func TestRescueMessage_UnknownKind(t *testing.T) {
	r := model.NewRider("ben@example.com", "Ben", "Hargreaves")

	subject, body := RescueMessage("bogus", r, "email", "Craig")

	assert.Empty(t, subject)
	assert.Empty(t, body)
}

func TestRescueKinds_Order(t *testing.T) {
	assert.Equal(t, []RescueKind{RescueDay1, RescueDay2, RescueCall}, RescueKinds())
}
