package store

import (
	"context"
	"time"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/resilience"
)

// RiderFilter specifies criteria for listing snapshot records.
type RiderFilter struct {
	Stage model.Stage `json:"stage,omitempty"`
	// Search matches name or email, case-insensitive substring.
	Search string `json:"search,omitempty"`
	// UpdatedSince keeps only records touched at or after this time.
	UpdatedSince time.Time `json:"updated_since,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	Offset       int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for the funnel pipeline: the
// rider snapshot from the last reconciliation run, run history, the
// outreach log, daily stats, and the queue of failed master pushes.
type Store interface {
	// Snapshot
	SaveSnapshot(ctx context.Context, runID string, riders []*model.Rider) (int, error)
	GetRider(ctx context.Context, key string) (*model.Rider, error)
	ListRiders(ctx context.Context, filter RiderFilter) ([]model.Rider, error)
	OverdueFollowUps(ctx context.Context, asOf time.Time) ([]model.Rider, error)
	SnapshotStats(ctx context.Context) (*model.DailyStats, error)

	// Runs
	SaveRun(ctx context.Context, report *model.LoadReport) error
	GetRun(ctx context.Context, runID string) (*model.LoadReport, error)
	ListRuns(ctx context.Context, limit int) ([]model.LoadReport, error)

	// Outreach log
	LogOutreach(ctx context.Context, entry model.OutreachEntry) error
	LastOutreach(ctx context.Context, riderKey, kind string) (*model.OutreachEntry, error)

	// Daily stats
	SaveDailyStats(ctx context.Context, stats model.DailyStats) error
	ListDailyStats(ctx context.Context, from, to time.Time) ([]model.DailyStats, error)

	// Push queue
	EnqueuePush(ctx context.Context, entry resilience.PushEntry) error
	DuePushes(ctx context.Context, limit int) ([]resilience.PushEntry, error)
	IncrementPushRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemovePush(ctx context.Context, id string) error
	CountPushes(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
