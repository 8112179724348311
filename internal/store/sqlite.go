package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the
// default backend: a single file next to the data directory.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS riders (
	key          TEXT PRIMARY KEY,
	email        TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL DEFAULT '',
	stage        TEXT NOT NULL,
	sale_value   REAL NOT NULL DEFAULT 0,
	disqualified INTEGER NOT NULL DEFAULT 0,
	follow_up_at DATETIME,
	record       TEXT NOT NULL,
	run_id       TEXT NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	report      TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	total_rows  INTEGER NOT NULL DEFAULT 0,
	loaded      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	riders      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS outreach_log (
	id        TEXT PRIMARY KEY,
	rider_key TEXT NOT NULL,
	kind      TEXT NOT NULL,
	channel   TEXT NOT NULL DEFAULT '',
	subject   TEXT NOT NULL DEFAULT '',
	body      TEXT NOT NULL DEFAULT '',
	sent_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_stats (
	date         TEXT PRIMARY KEY,
	riders       INTEGER NOT NULL DEFAULT 0,
	placeholders INTEGER NOT NULL DEFAULT 0,
	clients      INTEGER NOT NULL DEFAULT 0,
	revenue      REAL NOT NULL DEFAULT 0,
	by_stage     TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS push_queue (
	id             TEXT PRIMARY KEY,
	rider          TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_riders_stage ON riders(stage);
CREATE INDEX IF NOT EXISTS idx_riders_follow_up ON riders(follow_up_at);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_outreach_rider_kind ON outreach_log(rider_key, kind, sent_at);
CREATE INDEX IF NOT EXISTS idx_push_queue_next_retry ON push_queue(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot upserts the run's riders by identity key. Records absent
// from this run keep their previous snapshot row.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, runID string, riders []*model.Rider) (int, error) {
	if len(riders) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin snapshot tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO riders (key, email, name, stage, sale_value, disqualified, follow_up_at, record, run_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   email = excluded.email, name = excluded.name, stage = excluded.stage,
		   sale_value = excluded.sale_value, disqualified = excluded.disqualified,
		   follow_up_at = excluded.follow_up_at, record = excluded.record,
		   run_id = excluded.run_id, updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare snapshot upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range riders {
		record, err := json.Marshal(r)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal rider %s", r.Key)
		}
		if _, err := stmt.ExecContext(ctx,
			r.Key, r.Email, r.FullName(), string(r.Stage), r.SaleValue,
			r.Disqualified, r.FollowUpAt, string(record), runID, now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert rider %s", r.Key)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit snapshot")
	}
	return len(riders), nil
}

func (s *SQLiteStore) GetRider(ctx context.Context, key string) (*model.Rider, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM riders WHERE key = ?`, key,
	).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get rider %s", key)
	}
	return unmarshalRider(record)
}

func (s *SQLiteStore) ListRiders(ctx context.Context, filter RiderFilter) ([]model.Rider, error) {
	query := `SELECT record FROM riders WHERE 1=1`
	var args []any

	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	if filter.Search != "" {
		query += ` AND (name LIKE ? OR email LIKE ?)`
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}
	if !filter.UpdatedSince.IsZero() {
		query += ` AND updated_at >= ?`
		args = append(args, filter.UpdatedSince.UTC())
	}
	query += ` ORDER BY key`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list riders")
	}
	defer rows.Close()

	return collectRiders(rows)
}

func (s *SQLiteStore) OverdueFollowUps(ctx context.Context, asOf time.Time) ([]model.Rider, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM riders
		 WHERE follow_up_at IS NOT NULL AND follow_up_at <= ?
		   AND disqualified = 0 AND stage != ? AND stage != ?
		 ORDER BY follow_up_at`,
		asOf.UTC(), string(model.StageClient), string(model.StageNotAFit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: overdue follow-ups")
	}
	defer rows.Close()

	return collectRiders(rows)
}

func (s *SQLiteStore) SnapshotStats(ctx context.Context) (*model.DailyStats, error) {
	stats := &model.DailyStats{
		Date:    time.Now().UTC(),
		ByStage: make(map[model.Stage]int),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(*), COALESCE(SUM(sale_value), 0) FROM riders GROUP BY stage`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshot stats")
	}
	defer rows.Close()

	for rows.Next() {
		var stage string
		var count int
		var revenue float64
		if err := rows.Scan(&stage, &count, &revenue); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stats row")
		}
		stats.ByStage[model.Stage(stage)] = count
		stats.Riders += count
		stats.Revenue += revenue
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshot stats iterate")
	}
	stats.Clients = stats.ByStage[model.StageClient]

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM riders WHERE email = ''`,
	).Scan(&stats.Placeholders)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count placeholders")
	}

	return stats, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, report *model.LoadReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, report, started_at, finished_at, total_rows, loaded, skipped, riders)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   report = excluded.report, finished_at = excluded.finished_at,
		   total_rows = excluded.total_rows, loaded = excluded.loaded,
		   skipped = excluded.skipped, riders = excluded.riders`,
		report.RunID, string(reportJSON), report.StartedAt.UTC(), report.FinishedAt.UTC(),
		report.TotalRows, report.Loaded, report.Skipped, report.Riders,
	)
	return eris.Wrap(err, "sqlite: save run")
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.LoadReport, error) {
	var reportJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM runs WHERE id = ?`, runID,
	).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return unmarshalReport(reportJSON)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.LoadReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var reports []model.LoadReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r, err := unmarshalReport(reportJSON)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) LogOutreach(ctx context.Context, entry model.OutreachEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outreach_log (id, rider_key, kind, channel, subject, body, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RiderKey, entry.Kind, entry.Channel, entry.Subject, entry.Body, entry.SentAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: log outreach")
}

func (s *SQLiteStore) LastOutreach(ctx context.Context, riderKey, kind string) (*model.OutreachEntry, error) {
	query := `SELECT id, rider_key, kind, channel, subject, body, sent_at FROM outreach_log WHERE rider_key = ?`
	args := []any{riderKey}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY sent_at DESC LIMIT 1`

	var e model.OutreachEntry
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&e.ID, &e.RiderKey, &e.Kind, &e.Channel, &e.Subject, &e.Body, &e.SentAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: last outreach for %s", riderKey)
	}
	return &e, nil
}

func (s *SQLiteStore) SaveDailyStats(ctx context.Context, stats model.DailyStats) error {
	byStage, err := json.Marshal(stats.ByStage)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage counts")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO daily_stats (date, riders, placeholders, clients, revenue, by_stage)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
		   riders = excluded.riders, placeholders = excluded.placeholders,
		   clients = excluded.clients, revenue = excluded.revenue, by_stage = excluded.by_stage`,
		stats.Day().Format("2006-01-02"), stats.Riders, stats.Placeholders,
		stats.Clients, stats.Revenue, string(byStage),
	)
	return eris.Wrap(err, "sqlite: save daily stats")
}

func (s *SQLiteStore) ListDailyStats(ctx context.Context, from, to time.Time) ([]model.DailyStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, riders, placeholders, clients, revenue, by_stage FROM daily_stats
		 WHERE date >= ? AND date <= ? ORDER BY date`,
		from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list daily stats")
	}
	defer rows.Close()

	var out []model.DailyStats
	for rows.Next() {
		var d model.DailyStats
		var date, byStage string
		if err := rows.Scan(&date, &d.Riders, &d.Placeholders, &d.Clients, &d.Revenue, &byStage); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan daily stats")
		}
		d.Date, err = time.Parse("2006-01-02", date)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: bad stats date %q", date)
		}
		if err := json.Unmarshal([]byte(byStage), &d.ByStage); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stage counts")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list daily stats iterate")
}

func (s *SQLiteStore) EnqueuePush(ctx context.Context, entry resilience.PushEntry) error {
	riderJSON, err := json.Marshal(entry.Rider)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal push rider")
	}
	if entry.ID == "" {
		entry.ID = resilience.PushID(entry.Rider.Key)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO push_queue
		 (id, rider, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   rider = excluded.rider, error = excluded.error, error_type = excluded.error_type,
		   retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at,
		   last_failed_at = excluded.last_failed_at`,
		entry.ID, string(riderJSON), entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt.UTC(),
		entry.CreatedAt.UTC(), entry.LastFailedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue push")
}

func (s *SQLiteStore) DuePushes(ctx context.Context, limit int) ([]resilience.PushEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rider, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
		 FROM push_queue
		 WHERE next_retry_at <= ? AND retry_count < max_retries
		 ORDER BY next_retry_at LIMIT ?`,
		time.Now().UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: due pushes")
	}
	defer rows.Close()

	var entries []resilience.PushEntry
	for rows.Next() {
		var e resilience.PushEntry
		var riderJSON string
		if err := rows.Scan(&e.ID, &riderJSON, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan push entry")
		}
		if err := json.Unmarshal([]byte(riderJSON), &e.Rider); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal push rider")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: due pushes iterate")
}

func (s *SQLiteStore) IncrementPushRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE push_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt.UTC(), lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment push retry %s", id)
	}
	return checkRowsAffected(res, "push entry", id)
}

func (s *SQLiteStore) RemovePush(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove push")
}

func (s *SQLiteStore) CountPushes(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM push_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count pushes")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func unmarshalRider(record string) (*model.Rider, error) {
	var r model.Rider
	if err := json.Unmarshal([]byte(record), &r); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal rider record")
	}
	return &r, nil
}

func unmarshalReport(reportJSON string) (*model.LoadReport, error) {
	var r model.LoadReport
	if err := json.Unmarshal([]byte(reportJSON), &r); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal load report")
	}
	return &r, nil
}

func collectRiders(rows *sql.Rows) ([]model.Rider, error) {
	var riders []model.Rider
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, eris.Wrap(err, "store: scan rider record")
		}
		r, err := unmarshalRider(record)
		if err != nil {
			return nil, err
		}
		riders = append(riders, *r)
	}
	return riders, eris.Wrap(rows.Err(), "store: iterate riders")
}
