package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/claude/healthtrack/internal/models"
	_ "modernc.org/sqlite"
)

// SQLite is the local state database stored at dir/state.db.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS upload_status (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	state        TEXT NOT NULL,
	last_payload TEXT NOT NULL,
	detail       TEXT,
	updated_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_settings (
	id                INTEGER PRIMARY KEY CHECK (id = 1),
	access_key_id     TEXT NOT NULL,
	secret_access_key TEXT NOT NULL,
	region            TEXT NOT NULL,
	endpoint          TEXT NOT NULL DEFAULT '',
	bucket            TEXT NOT NULL,
	object_key        TEXT NOT NULL,
	interval_minutes  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS metric_cache (
	id                 INTEGER PRIMARY KEY CHECK (id = 1),
	step_count         INTEGER,
	active_minutes     INTEGER,
	resting_heart_rate REAL,
	read_at            INTEGER NOT NULL
);`

// OpenSQLite opens (or creates) the SQLite state database at dir/state.db.
func OpenSQLite(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	// synchronous=FULL so a committed status write survives process suspension.
	dsn := filepath.Join(dir, "state.db") + "?_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state tables: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the state database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) GetStatus(ctx context.Context) (*models.UploadStatus, error) {
	var (
		state     string
		payload   string
		detail    sql.NullString
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT state, last_payload, detail, updated_at FROM upload_status WHERE id = 1`,
	).Scan(&state, &payload, &detail, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying upload status: %w", err)
	}

	parsed, err := models.ParseUploadState(state)
	if err != nil {
		return nil, fmt.Errorf("reading upload status: %w", err)
	}
	st := &models.UploadStatus{
		State:       parsed,
		LastPayload: payload,
		Timestamp:   time.Unix(0, updatedAt),
	}
	if detail.Valid {
		st.Detail = &detail.String
	}
	return st, nil
}

func (s *SQLite) UpsertStatus(ctx context.Context, st models.UploadStatus) error {
	if _, err := models.ParseUploadState(string(st.State)); err != nil {
		return fmt.Errorf("upserting upload status: %w", err)
	}
	var detail sql.NullString
	if st.Detail != nil {
		detail = sql.NullString{String: *st.Detail, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO upload_status (id, state, last_payload, detail, updated_at)
		 VALUES (1, ?, ?, ?, ?)`,
		string(st.State), st.LastPayload, detail, st.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upserting upload status: %w", err)
	}
	return nil
}

func (s *SQLite) ClearStatus(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM upload_status`); err != nil {
		return fmt.Errorf("clearing upload status: %w", err)
	}
	return nil
}

func (s *SQLite) GetSyncConfig(ctx context.Context) (*models.SyncConfig, error) {
	var cfg models.SyncConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT access_key_id, secret_access_key, region, endpoint, bucket, object_key, interval_minutes
		 FROM sync_settings WHERE id = 1`,
	).Scan(&cfg.AccessKeyID, &cfg.SecretAccessKey, &cfg.Region, &cfg.Endpoint,
		&cfg.Bucket, &cfg.ObjectKey, &cfg.IntervalMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConfigUnset
	}
	if err != nil {
		return nil, fmt.Errorf("querying sync config: %w", err)
	}
	return &cfg, nil
}

func (s *SQLite) SaveSyncConfig(ctx context.Context, cfg models.SyncConfig) error {
	if err := validateConfig(&cfg); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sync_settings
		 (id, access_key_id, secret_access_key, region, endpoint, bucket, object_key, interval_minutes)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.AccessKeyID, cfg.SecretAccessKey, cfg.Region, cfg.Endpoint,
		cfg.Bucket, cfg.ObjectKey, cfg.IntervalMinutes,
	)
	if err != nil {
		return fmt.Errorf("saving sync config: %w", err)
	}
	return nil
}

func (s *SQLite) ClearSyncConfig(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_settings`); err != nil {
		return fmt.Errorf("clearing sync config: %w", err)
	}
	return nil
}

func (s *SQLite) SetInterval(ctx context.Context, minutes int) error {
	if err := models.ValidateInterval(minutes); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_settings SET interval_minutes = ? WHERE id = 1`, minutes)
	if err != nil {
		return fmt.Errorf("updating sync interval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating sync interval: %w", err)
	}
	if n == 0 {
		return ErrConfigUnset
	}
	return nil
}

func (s *SQLite) SaveMetrics(ctx context.Context, m models.CachedMetrics) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO metric_cache (id, step_count, active_minutes, resting_heart_rate, read_at)
		 VALUES (1, ?, ?, ?, ?)`,
		nullInt(m.StepCount), nullInt(m.ActiveMinutes), nullFloat(m.RestingHeartRate), m.ReadAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("caching metrics: %w", err)
	}
	return nil
}

func (s *SQLite) GetMetrics(ctx context.Context) (*models.CachedMetrics, error) {
	var (
		steps, minutes sql.NullInt64
		hr             sql.NullFloat64
		readAt         int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT step_count, active_minutes, resting_heart_rate, read_at FROM metric_cache WHERE id = 1`,
	).Scan(&steps, &minutes, &hr, &readAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying metric cache: %w", err)
	}

	m := &models.CachedMetrics{ReadAt: time.Unix(0, readAt)}
	if steps.Valid {
		m.StepCount = &steps.Int64
	}
	if minutes.Valid {
		m.ActiveMinutes = &minutes.Int64
	}
	if hr.Valid {
		m.RestingHeartRate = &hr.Float64
	}
	return m, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
