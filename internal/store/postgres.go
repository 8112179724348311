package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/podium-performance/funnel-cli/internal/db"
	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool, for setups where the
// snapshot is shared between the CLI and the dashboard API.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_rider":     `SELECT record FROM riders WHERE key = $1`,
	"save_run":      `INSERT INTO runs (id, report, started_at, finished_at, total_rows, loaded, skipped, riders) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO UPDATE SET report = $2, finished_at = $4, total_rows = $5, loaded = $6, skipped = $7, riders = $8`,
	"get_run":       `SELECT report FROM runs WHERE id = $1`,
	"log_outreach":  `INSERT INTO outreach_log (id, rider_key, kind, channel, subject, body, sent_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"remove_push":   `DELETE FROM push_queue WHERE id = $1`,
	"count_pushes":  `SELECT COUNT(*) FROM push_queue`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS riders (
	key          TEXT PRIMARY KEY,
	email        TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL DEFAULT '',
	stage        TEXT NOT NULL,
	sale_value   DOUBLE PRECISION NOT NULL DEFAULT 0,
	disqualified BOOLEAN NOT NULL DEFAULT false,
	follow_up_at TIMESTAMPTZ,
	record       JSONB NOT NULL,
	run_id       TEXT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	report      JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	total_rows  INTEGER NOT NULL DEFAULT 0,
	loaded      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	riders      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS outreach_log (
	id        TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	rider_key TEXT NOT NULL,
	kind      TEXT NOT NULL,
	channel   TEXT NOT NULL DEFAULT '',
	subject   TEXT NOT NULL DEFAULT '',
	body      TEXT NOT NULL DEFAULT '',
	sent_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS daily_stats (
	date         DATE PRIMARY KEY,
	riders       INTEGER NOT NULL DEFAULT 0,
	placeholders INTEGER NOT NULL DEFAULT 0,
	clients      INTEGER NOT NULL DEFAULT 0,
	revenue      DOUBLE PRECISION NOT NULL DEFAULT 0,
	by_stage     JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS push_queue (
	id             TEXT PRIMARY KEY,
	rider          JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_riders_stage ON riders(stage);
CREATE INDEX IF NOT EXISTS idx_riders_follow_up ON riders(follow_up_at);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_outreach_rider_kind ON outreach_log(rider_key, kind, sent_at DESC);
CREATE INDEX IF NOT EXISTS idx_push_queue_next_retry ON push_queue(next_retry_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var riderColumns = []string{
	"key", "email", "name", "stage", "sale_value", "disqualified",
	"follow_up_at", "record", "run_id", "updated_at",
}

// SaveSnapshot bulk-upserts the run's riders by identity key via a temp
// table and COPY, which keeps full-registry saves to a single round trip
// per batch.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, runID string, riders []*model.Rider) (int, error) {
	if len(riders) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(riders))
	for _, r := range riders {
		record, err := json.Marshal(r)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal rider %s", r.Key)
		}
		rows = append(rows, []any{
			r.Key, r.Email, r.FullName(), string(r.Stage), r.SaleValue,
			r.Disqualified, r.FollowUpAt, record, runID, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "riders",
		Columns:      riderColumns,
		ConflictKeys: []string{"key"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save snapshot")
	}
	return int(n), nil
}

func (s *PostgresStore) GetRider(ctx context.Context, key string) (*model.Rider, error) {
	var record []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM riders WHERE key = $1`, key,
	).Scan(&record)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get rider %s", key)
	}
	return unmarshalRider(string(record))
}

func (s *PostgresStore) ListRiders(ctx context.Context, filter RiderFilter) ([]model.Rider, error) {
	query := `SELECT record FROM riders WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Stage != "" {
		query += fmt.Sprintf(` AND stage = $%d`, argIdx)
		args = append(args, string(filter.Stage))
		argIdx++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(` AND (name ILIKE $%d OR email ILIKE $%d)`, argIdx, argIdx)
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}
	if !filter.UpdatedSince.IsZero() {
		query += fmt.Sprintf(` AND updated_at >= $%d`, argIdx)
		args = append(args, filter.UpdatedSince.UTC())
		argIdx++
	}
	query += ` ORDER BY key`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list riders")
	}
	defer rows.Close()

	return collectPgxRiders(rows)
}

func (s *PostgresStore) OverdueFollowUps(ctx context.Context, asOf time.Time) ([]model.Rider, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM riders
		 WHERE follow_up_at IS NOT NULL AND follow_up_at <= $1
		   AND NOT disqualified AND stage != $2 AND stage != $3
		 ORDER BY follow_up_at`,
		asOf.UTC(), string(model.StageClient), string(model.StageNotAFit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: overdue follow-ups")
	}
	defer rows.Close()

	return collectPgxRiders(rows)
}

func (s *PostgresStore) SnapshotStats(ctx context.Context) (*model.DailyStats, error) {
	stats := &model.DailyStats{
		Date:    time.Now().UTC(),
		ByStage: make(map[model.Stage]int),
	}

	rows, err := s.pool.Query(ctx,
		`SELECT stage, COUNT(*), COALESCE(SUM(sale_value), 0) FROM riders GROUP BY stage`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: snapshot stats")
	}
	defer rows.Close()

	for rows.Next() {
		var stage string
		var count int
		var revenue float64
		if err := rows.Scan(&stage, &count, &revenue); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stats row")
		}
		stats.ByStage[model.Stage(stage)] = count
		stats.Riders += count
		stats.Revenue += revenue
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: snapshot stats iterate")
	}
	stats.Clients = stats.ByStage[model.StageClient]

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM riders WHERE email = ''`,
	).Scan(&stats.Placeholders)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count placeholders")
	}

	return stats, nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, report *model.LoadReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, report, started_at, finished_at, total_rows, loaded, skipped, riders)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   report = $2, finished_at = $4, total_rows = $5, loaded = $6, skipped = $7, riders = $8`,
		report.RunID, reportJSON, report.StartedAt.UTC(), report.FinishedAt.UTC(),
		report.TotalRows, report.Loaded, report.Skipped, report.Riders,
	)
	return eris.Wrap(err, "postgres: save run")
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.LoadReport, error) {
	var reportJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM runs WHERE id = $1`, runID,
	).Scan(&reportJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("run not found: %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return unmarshalReport(string(reportJSON))
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.LoadReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT report FROM runs ORDER BY started_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var reports []model.LoadReport
	for rows.Next() {
		var reportJSON []byte
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r, err := unmarshalReport(string(reportJSON))
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) LogOutreach(ctx context.Context, entry model.OutreachEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO outreach_log (id, rider_key, kind, channel, subject, body, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.RiderKey, entry.Kind, entry.Channel, entry.Subject, entry.Body, entry.SentAt.UTC(),
	)
	return eris.Wrap(err, "postgres: log outreach")
}

func (s *PostgresStore) LastOutreach(ctx context.Context, riderKey, kind string) (*model.OutreachEntry, error) {
	query := `SELECT id, rider_key, kind, channel, subject, body, sent_at FROM outreach_log WHERE rider_key = $1`
	args := []any{riderKey}
	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, kind)
	}
	query += ` ORDER BY sent_at DESC LIMIT 1`

	var e model.OutreachEntry
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&e.ID, &e.RiderKey, &e.Kind, &e.Channel, &e.Subject, &e.Body, &e.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: last outreach for %s", riderKey)
	}
	return &e, nil
}

func (s *PostgresStore) SaveDailyStats(ctx context.Context, stats model.DailyStats) error {
	byStage, err := json.Marshal(stats.ByStage)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage counts")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO daily_stats (date, riders, placeholders, clients, revenue, by_stage)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (date) DO UPDATE SET
		   riders = $2, placeholders = $3, clients = $4, revenue = $5, by_stage = $6`,
		stats.Day(), stats.Riders, stats.Placeholders, stats.Clients, stats.Revenue, byStage,
	)
	return eris.Wrap(err, "postgres: save daily stats")
}

func (s *PostgresStore) ListDailyStats(ctx context.Context, from, to time.Time) ([]model.DailyStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date, riders, placeholders, clients, revenue, by_stage FROM daily_stats
		 WHERE date >= $1 AND date <= $2 ORDER BY date`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list daily stats")
	}
	defer rows.Close()

	var out []model.DailyStats
	for rows.Next() {
		var d model.DailyStats
		var byStage []byte
		if err := rows.Scan(&d.Date, &d.Riders, &d.Placeholders, &d.Clients, &d.Revenue, &byStage); err != nil {
			return nil, eris.Wrap(err, "postgres: scan daily stats")
		}
		if err := json.Unmarshal(byStage, &d.ByStage); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stage counts")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list daily stats iterate")
}

func (s *PostgresStore) EnqueuePush(ctx context.Context, entry resilience.PushEntry) error {
	riderJSON, err := json.Marshal(entry.Rider)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal push rider")
	}
	if entry.ID == "" {
		entry.ID = resilience.PushID(entry.Rider.Key)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO push_queue
		 (id, rider, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   rider = $2, error = $3, error_type = $4, retry_count = $5,
		   next_retry_at = $7, last_failed_at = $9`,
		entry.ID, riderJSON, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt.UTC(),
		entry.CreatedAt.UTC(), entry.LastFailedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: enqueue push")
}

func (s *PostgresStore) DuePushes(ctx context.Context, limit int) ([]resilience.PushEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, rider, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
		 FROM push_queue
		 WHERE next_retry_at <= now() AND retry_count < max_retries
		 ORDER BY next_retry_at LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: due pushes")
	}
	defer rows.Close()

	var entries []resilience.PushEntry
	for rows.Next() {
		var e resilience.PushEntry
		var riderJSON []byte
		if err := rows.Scan(&e.ID, &riderJSON, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan push entry")
		}
		if err := json.Unmarshal(riderJSON, &e.Rider); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal push rider")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: due pushes iterate")
}

func (s *PostgresStore) IncrementPushRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE push_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt.UTC(), lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment push retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("push entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemovePush(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM push_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove push")
}

func (s *PostgresStore) CountPushes(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM push_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count pushes")
}

func collectPgxRiders(rows pgx.Rows) ([]model.Rider, error) {
	var riders []model.Rider
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rider record")
		}
		r, err := unmarshalRider(string(record))
		if err != nil {
			return nil, err
		}
		riders = append(riders, *r)
	}
	return riders, eris.Wrap(rows.Err(), "postgres: iterate riders")
}
