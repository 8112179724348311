package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/resilience"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRider(key string, stage model.Stage) *model.Rider {
	r := model.NewRider(key, "Jane", "Hopper")
	r.Stage = stage
	return r
}

// --- Snapshot ---

func TestSQLite_SaveSnapshot_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	followUp := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	rider := testRider("jane@example.com", model.StageRegistered)
	rider.Phone = "+44 7700 900123"
	rider.Track = "Cadwell Park"
	rider.FollowUpAt = &followUp
	rider.MarkMilestone(model.StageRegistered, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), false)

	n, err := st.SaveSnapshot(ctx, "run-1", []*model.Rider{rider})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fetched, err := st.GetRider(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "jane@example.com", fetched.Email)
	assert.Equal(t, "Jane Hopper", fetched.FullName())
	assert.Equal(t, model.StageRegistered, fetched.Stage)
	assert.Equal(t, "Cadwell Park", fetched.Track)
	require.NotNil(t, fetched.FollowUpAt)
	assert.True(t, fetched.FollowUpAt.Equal(followUp))
	at, ok := fetched.Milestone(model.StageRegistered)
	require.True(t, ok)
	assert.True(t, at.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))
}

func TestSQLite_SaveSnapshot_UpsertsByKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rider := testRider("jane@example.com", model.StageMessaged)
	_, err := st.SaveSnapshot(ctx, "run-1", []*model.Rider{rider})
	require.NoError(t, err)

	rider.Stage = model.StageClient
	rider.SaleValue = 4000
	_, err = st.SaveSnapshot(ctx, "run-2", []*model.Rider{rider})
	require.NoError(t, err)

	fetched, err := st.GetRider(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, model.StageClient, fetched.Stage)
	assert.Equal(t, 4000.0, fetched.SaleValue)

	// One row, not two.
	all, err := st.ListRiders(ctx, RiderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLite_SaveSnapshot_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	n, err := st.SaveSnapshot(context.Background(), "run-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLite_GetRider_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	fetched, err := st.GetRider(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, fetched)
}

// --- ListRiders ---

func TestSQLite_ListRiders_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	jane := testRider("jane@example.com", model.StageClient)
	craig := model.NewRider("craig@example.com", "Craig", "Hargreaves")
	craig.Stage = model.StageReplied
	slug := model.NewRider("no_email_sam_lowes", "Sam", "Lowes")

	_, err := st.SaveSnapshot(ctx, "run-1", []*model.Rider{jane, craig, slug})
	require.NoError(t, err)

	all, err := st.ListRiders(ctx, RiderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	clients, err := st.ListRiders(ctx, RiderFilter{Stage: model.StageClient})
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "jane@example.com", clients[0].Key)

	byName, err := st.ListRiders(ctx, RiderFilter{Search: "hargreaves"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "craig@example.com", byName[0].Key)

	byEmail, err := st.ListRiders(ctx, RiderFilter{Search: "jane@"})
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, "jane@example.com", byEmail[0].Key)
}

func TestSQLite_ListRiders_LimitOffset(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	riders := []*model.Rider{
		model.NewRider("a@example.com", "A", ""),
		model.NewRider("b@example.com", "B", ""),
		model.NewRider("c@example.com", "C", ""),
	}
	_, err := st.SaveSnapshot(ctx, "run-1", riders)
	require.NoError(t, err)

	page, err := st.ListRiders(ctx, RiderFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a@example.com", page[0].Key)

	page, err = st.ListRiders(ctx, RiderFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c@example.com", page[0].Key)
}

func TestSQLite_ListRiders_UpdatedSince(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.SaveSnapshot(ctx, "run-1", []*model.Rider{testRider("jane@example.com", model.StageContact)})
	require.NoError(t, err)

	recent, err := st.ListRiders(ctx, RiderFilter{UpdatedSince: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	future, err := st.ListRiders(ctx, RiderFilter{UpdatedSince: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, future)
}

// --- OverdueFollowUps ---

func TestSQLite_OverdueFollowUps(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-48 * time.Hour)
	future := time.Now().UTC().Add(48 * time.Hour)

	overdue := testRider("overdue@example.com", model.StageReplied)
	overdue.FollowUpAt = &past

	upcoming := testRider("upcoming@example.com", model.StageReplied)
	upcoming.FollowUpAt = &future

	signedClient := testRider("client@example.com", model.StageClient)
	signedClient.FollowUpAt = &past

	dropped := testRider("dropped@example.com", model.StageReplied)
	dropped.FollowUpAt = &past
	dropped.Disqualified = true

	noDate := testRider("nodate@example.com", model.StageReplied)

	_, err := st.SaveSnapshot(ctx, "run-1", []*model.Rider{overdue, upcoming, signedClient, dropped, noDate})
	require.NoError(t, err)

	due, err := st.OverdueFollowUps(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "overdue@example.com", due[0].Key)
}

// --- SnapshotStats ---

func TestSQLite_SnapshotStats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	client := testRider("client@example.com", model.StageClient)
	client.SaleValue = 4000
	secondClient := testRider("second@example.com", model.StageClient)
	secondClient.SaleValue = 2000
	contact := testRider("contact@example.com", model.StageContact)
	slug := model.NewRider("no_email_sam_lowes", "Sam", "Lowes")

	_, err := st.SaveSnapshot(ctx, "run-1", []*model.Rider{client, secondClient, contact, slug})
	require.NoError(t, err)

	stats, err := st.SnapshotStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Riders)
	assert.Equal(t, 2, stats.Clients)
	assert.Equal(t, 1, stats.Placeholders)
	assert.Equal(t, 6000.0, stats.Revenue)
	assert.Equal(t, 2, stats.ByStage[model.StageClient])
	assert.Equal(t, 2, stats.ByStage[model.StageContact])
}

func TestSQLite_SnapshotStats_EmptyDatabase(t *testing.T) {
	st := newTestSQLiteStore(t)

	stats, err := st.SnapshotStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Riders)
	assert.Equal(t, 0, stats.Clients)
	assert.Empty(t, stats.ByStage)
}

// --- Runs ---

func testReport(runID string) *model.LoadReport {
	return &model.LoadReport{
		RunID:      runID,
		StartedAt:  time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 3, 14, 9, 2, 0, 0, time.UTC),
		TotalRows:  120,
		Loaded:     115,
		Skipped:    5,
		SkipReasons: map[model.SkipReason]int{
			model.SkipNoIdentity: 5,
		},
		Feeds: []model.FeedResult{
			{Feed: "webinar_day1", Rows: 120, Loaded: 115, Skipped: 5},
		},
		Riders: 110,
	}
}

func TestSQLite_SaveRun_And_GetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveRun(ctx, testReport("run-1")))

	fetched, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", fetched.RunID)
	assert.Equal(t, 115, fetched.Loaded)
	assert.Equal(t, 5, fetched.SkipReasons[model.SkipNoIdentity])
	require.Len(t, fetched.Feeds, 1)
	assert.Equal(t, "webinar_day1", fetched.Feeds[0].Feed)
}

func TestSQLite_GetRun_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_SaveRun_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	report := testReport("run-1")
	require.NoError(t, st.SaveRun(ctx, report))

	report.Loaded = 200
	require.NoError(t, st.SaveRun(ctx, report))

	fetched, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 200, fetched.Loaded)

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLite_ListRuns_NewestFirst(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	older := testReport("run-old")
	older.StartedAt = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	newer := testReport("run-new")
	newer.StartedAt = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveRun(ctx, older))
	require.NoError(t, st.SaveRun(ctx, newer))

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].RunID)
	assert.Equal(t, "run-old", runs[1].RunID)

	limited, err := st.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-new", limited[0].RunID)
}

// --- Outreach log ---

func TestSQLite_LogOutreach_And_LastOutreach(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.LogOutreach(ctx, model.OutreachEntry{
		RiderKey: "jane@example.com",
		Kind:     "race_result",
		Channel:  "email",
		Subject:  "Saw your result at Brands Hatch",
	})
	require.NoError(t, err)

	last, err := st.LastOutreach(ctx, "jane@example.com", "race_result")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.NotEmpty(t, last.ID)
	assert.Equal(t, "race_result", last.Kind)
	assert.Equal(t, "Saw your result at Brands Hatch", last.Subject)
	assert.False(t, last.SentAt.IsZero())
}

func TestSQLite_LastOutreach_PicksNewest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	older := model.OutreachEntry{
		RiderKey: "jane@example.com", Kind: "rescue_1",
		SentAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	newer := model.OutreachEntry{
		RiderKey: "jane@example.com", Kind: "rescue_2",
		SentAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.LogOutreach(ctx, older))
	require.NoError(t, st.LogOutreach(ctx, newer))

	// Without a kind filter the newest entry wins.
	last, err := st.LastOutreach(ctx, "jane@example.com", "")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "rescue_2", last.Kind)

	// With a kind filter the older entry is still reachable.
	last, err = st.LastOutreach(ctx, "jane@example.com", "rescue_1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.SentAt.Equal(older.SentAt))
}

func TestSQLite_LastOutreach_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	last, err := st.LastOutreach(context.Background(), "nobody@example.com", "")
	require.NoError(t, err)
	assert.Nil(t, last)
}

// --- Daily stats ---

func TestSQLite_DailyStats_UpsertAndRange(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	day1 := model.DailyStats{
		Date: time.Date(2026, 3, 13, 15, 30, 0, 0, time.UTC),
		Riders: 100, Clients: 2, Revenue: 8000,
		ByStage: map[model.Stage]int{model.StageClient: 2, model.StageContact: 98},
	}
	day2 := model.DailyStats{
		Date: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Riders: 105, Clients: 3, Revenue: 12000,
	}
	require.NoError(t, st.SaveDailyStats(ctx, day1))
	require.NoError(t, st.SaveDailyStats(ctx, day2))

	// Saving the same day again replaces, not duplicates.
	day2.Riders = 110
	require.NoError(t, st.SaveDailyStats(ctx, day2))

	all, err := st.ListDailyStats(ctx,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 100, all[0].Riders)
	assert.Equal(t, 110, all[1].Riders)
	assert.Equal(t, 2, all[0].ByStage[model.StageClient])

	// Range excludes days outside the window.
	none, err := st.ListDailyStats(ctx,
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// --- Push queue ---

func duePushEntry(key string) resilience.PushEntry {
	now := time.Now().UTC()
	return resilience.PushEntry{
		ID:           resilience.PushID(key),
		Rider:        *model.NewRider(key, "Jane", "Hopper"),
		Error:        "notion: 503",
		ErrorType:    "transient",
		RetryCount:   0,
		MaxRetries:   3,
		NextRetryAt:  now.Add(-time.Minute),
		CreatedAt:    now.Add(-2 * time.Minute),
		LastFailedAt: now.Add(-2 * time.Minute),
	}
}

func TestSQLite_PushQueue_EnqueueAndDue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	due := duePushEntry("jane@example.com")
	notYet := duePushEntry("craig@example.com")
	notYet.NextRetryAt = time.Now().UTC().Add(time.Hour)

	require.NoError(t, st.EnqueuePush(ctx, due))
	require.NoError(t, st.EnqueuePush(ctx, notYet))

	entries, err := st.DuePushes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, due.ID, entries[0].ID)
	assert.Equal(t, "jane@example.com", entries[0].Rider.Key)
	assert.Equal(t, "notion: 503", entries[0].Error)

	count, err := st.CountPushes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLite_PushQueue_SameRiderCollapses(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := duePushEntry("jane@example.com")
	require.NoError(t, st.EnqueuePush(ctx, first))

	// A second failure for the same rider updates the entry in place.
	second := duePushEntry("jane@example.com")
	second.Error = "notion: timeout"
	require.NoError(t, st.EnqueuePush(ctx, second))

	count, err := st.CountPushes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entries, err := st.DuePushes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notion: timeout", entries[0].Error)
}

func TestSQLite_PushQueue_ExhaustedRetriesNotDue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	spent := duePushEntry("jane@example.com")
	spent.RetryCount = 3
	require.NoError(t, st.EnqueuePush(ctx, spent))

	entries, err := st.DuePushes(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Still counted: exhausted entries stay visible until removed.
	count, err := st.CountPushes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLite_PushQueue_IncrementRetry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := duePushEntry("jane@example.com")
	require.NoError(t, st.EnqueuePush(ctx, entry))

	next := time.Now().UTC().Add(4 * time.Minute)
	require.NoError(t, st.IncrementPushRetry(ctx, entry.ID, next, "notion: 502"))

	// Pushed out of the due window.
	entries, err := st.DuePushes(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLite_PushQueue_IncrementRetry_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.IncrementPushRetry(context.Background(), "no-such-id", time.Now(), "err")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_PushQueue_Remove(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := duePushEntry("jane@example.com")
	require.NoError(t, st.EnqueuePush(ctx, entry))
	require.NoError(t, st.RemovePush(ctx, entry.ID))

	count, err := st.CountPushes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Removing an absent entry is not an error.
	require.NoError(t, st.RemovePush(ctx, entry.ID))
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.Migrate(context.Background())
	require.NoError(t, err)
}
