//go:build !integration

package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/resilience"
	"github.com/podium-performance/funnel-cli/internal/store"
)

// fakePusher records pushed rider keys and fails the keys in failKeys.
type fakePusher struct {
	failKeys map[string]bool
	pushed   []string
}

func (f *fakePusher) Push(_ context.Context, r *model.Rider) error {
	f.pushed = append(f.pushed, r.Key)
	if f.failKeys[r.Key] {
		return errors.New("master rejected the record")
	}
	return nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// dueEntry parks a failed push whose retry window has already opened.
func dueEntry(r *model.Rider, retryCount int) resilience.PushEntry {
	e := resilience.NewPushEntry(*r, errors.New("boom"), 3)
	e.RetryCount = retryCount
	e.NextRetryAt = time.Now().UTC().Add(-time.Minute)
	return e
}

func TestPushRider_Success(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	p := &fakePusher{}

	r := model.NewRider("jess hall", "Jess", "Hall")
	require.NoError(t, pushRider(ctx, st, p, r))

	assert.Equal(t, []string{"jess hall"}, p.pushed)

	count, err := st.CountPushes(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPushRider_FailureQueues(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	p := &fakePusher{failKeys: map[string]bool{"jess hall": true}}

	r := model.NewRider("jess hall", "Jess", "Hall")
	err := pushRider(ctx, st, p, r)
	require.Error(t, err)

	count, err := st.CountPushes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPushRider_RepeatFailuresCollapse(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	p := &fakePusher{failKeys: map[string]bool{"jess hall": true}}

	r := model.NewRider("jess hall", "Jess", "Hall")
	require.Error(t, pushRider(ctx, st, p, r))
	require.Error(t, pushRider(ctx, st, p, r))

	// Same rider, one queue entry.
	count, err := st.CountPushes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPushRiders_CountsFailures(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	p := &fakePusher{failKeys: map[string]bool{"sam cox": true}}

	riders := []*model.Rider{
		model.NewRider("jess hall", "Jess", "Hall"),
		model.NewRider("sam cox", "Sam", "Cox"),
		model.NewRider("ryan north", "Ryan", "North"),
	}

	pushed, queued := pushRiders(ctx, st, p, riders)
	assert.Equal(t, 2, pushed)
	assert.Equal(t, 1, queued)
}

func TestPushRiders_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := newTestStore(t)
	p := &fakePusher{}

	pushed, queued := pushRiders(ctx, st, p, []*model.Rider{
		model.NewRider("jess hall", "Jess", "Hall"),
	})
	assert.Zero(t, pushed)
	assert.Zero(t, queued)
	assert.Empty(t, p.pushed)
}

func TestDrainPushes_DeliversDue(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	r := model.NewRider("jess hall", "Jess", "Hall")
	require.NoError(t, st.EnqueuePush(ctx, dueEntry(r, 0)))

	p := &fakePusher{}
	delivered, requeued, dropped, err := drainPushes(ctx, st, p, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Zero(t, requeued)
	assert.Zero(t, dropped)

	count, err := st.CountPushes(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDrainPushes_RequeuesFailure(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	r := model.NewRider("jess hall", "Jess", "Hall")
	require.NoError(t, st.EnqueuePush(ctx, dueEntry(r, 0)))

	p := &fakePusher{failKeys: map[string]bool{"jess hall": true}}
	delivered, requeued, dropped, err := drainPushes(ctx, st, p, 10)
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Equal(t, 1, requeued)
	assert.Zero(t, dropped)

	// Still queued, but the backoff pushed it out of the due window.
	count, err := st.CountPushes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	due, err := st.DuePushes(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDrainPushes_DropsExhausted(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	r := model.NewRider("jess hall", "Jess", "Hall")
	require.NoError(t, st.EnqueuePush(ctx, dueEntry(r, 2)))

	p := &fakePusher{failKeys: map[string]bool{"jess hall": true}}
	delivered, requeued, dropped, err := drainPushes(ctx, st, p, 10)
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Zero(t, requeued)
	assert.Equal(t, 1, dropped)

	count, err := st.CountPushes(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "exhausted entry should be removed")
}

func TestDrainPushes_EmptyQueue(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	delivered, requeued, dropped, err := drainPushes(ctx, st, &fakePusher{}, 10)
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Zero(t, requeued)
	assert.Zero(t, dropped)
}
