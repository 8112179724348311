package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/resilience"
	"github.com/podium-performance/funnel-cli/internal/store"
)

// pusher delivers one rider to the authoritative remote master.
// Satisfied by *notion.Master.
type pusher interface {
	Push(ctx context.Context, r *model.Rider) error
}

func masterRetryConfig() resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	rc.OnRetry = resilience.RetryLogger("notion", "push")
	return rc
}

// pushRider delivers one rider, retrying transient failures inline.
// Anything that still fails is parked on the push queue and the failure
// returned; the local snapshot is never rolled back.
func pushRider(ctx context.Context, st store.Store, p pusher, r *model.Rider) error {
	err := resilience.Do(ctx, masterRetryConfig(), func(ctx context.Context) error {
		return p.Push(ctx, r)
	})
	if err == nil {
		return nil
	}

	entry := resilience.NewPushEntry(*r, err, 0)
	if qErr := st.EnqueuePush(ctx, entry); qErr != nil {
		zap.L().Error("queue failed push",
			zap.String("rider", r.Key),
			zap.Error(qErr),
		)
	}
	return err
}

// pushRiders delivers a batch fire-and-forget: per-rider failures are
// queued for retry, counted, and never abort the batch.
func pushRiders(ctx context.Context, st store.Store, p pusher, riders []*model.Rider) (pushed, queued int) {
	for _, r := range riders {
		if ctx.Err() != nil {
			return pushed, queued
		}
		if err := pushRider(ctx, st, p, r); err != nil {
			zap.L().Warn("master push failed, queued for retry",
				zap.String("rider", r.Key),
				zap.Error(err),
			)
			queued++
			continue
		}
		pushed++
	}
	return pushed, queued
}

// drainPushes retries every due entry on the push queue. Entries that
// exhaust their retry budget are dropped with a final error log so the
// queue cannot grow unbounded on a permanently broken record.
func drainPushes(ctx context.Context, st store.Store, p pusher, limit int) (delivered, requeued, dropped int, err error) {
	due, err := st.DuePushes(ctx, limit)
	if err != nil {
		return 0, 0, 0, err
	}

	for i := range due {
		e := &due[i]
		if ctx.Err() != nil {
			return delivered, requeued, dropped, ctx.Err()
		}

		pushErr := p.Push(ctx, &e.Rider)
		if pushErr == nil {
			if err := st.RemovePush(ctx, e.ID); err != nil {
				return delivered, requeued, dropped, err
			}
			delivered++
			continue
		}

		// Mirrors the store-side increment so the budget check sees the
		// count this failure brings it to.
		e.RetryCount++
		if !e.CanRetry() {
			zap.L().Error("dropping push after retries exhausted",
				zap.String("rider", e.Rider.Key),
				zap.Int("retries", e.RetryCount),
				zap.Error(pushErr),
			)
			if err := st.RemovePush(ctx, e.ID); err != nil {
				return delivered, requeued, dropped, err
			}
			dropped++
			continue
		}

		next := time.Now().UTC().Add(resilience.NextBackoff(e.RetryCount))
		if err := st.IncrementPushRetry(ctx, e.ID, next, pushErr.Error()); err != nil {
			return delivered, requeued, dropped, err
		}
		requeued++
	}

	return delivered, requeued, dropped, nil
}
