package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/claude/healthtrack/internal/models"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// Postgres wraps a pgxpool.Pool and implements Store.
type Postgres struct {
	Pool *pgxpool.Pool
}

// OpenPostgres creates a connection pool and verifies connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Postgres{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.Pool.Close()
	return nil
}

// MigratePostgres applies all pending embedded migrations.
func MigratePostgres(dsn string) error {
	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (p *Postgres) GetStatus(ctx context.Context) (*models.UploadStatus, error) {
	var (
		state string
		st    models.UploadStatus
	)
	err := p.Pool.QueryRow(ctx,
		`SELECT state, last_payload, detail, updated_at FROM upload_status WHERE id = 1`,
	).Scan(&state, &st.LastPayload, &st.Detail, &st.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying upload status: %w", err)
	}
	if st.State, err = models.ParseUploadState(state); err != nil {
		return nil, fmt.Errorf("reading upload status: %w", err)
	}
	return &st, nil
}

func (p *Postgres) UpsertStatus(ctx context.Context, st models.UploadStatus) error {
	if _, err := models.ParseUploadState(string(st.State)); err != nil {
		return fmt.Errorf("upserting upload status: %w", err)
	}
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO upload_status (id, state, last_payload, detail, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
			SET state = EXCLUDED.state, last_payload = EXCLUDED.last_payload,
			    detail = EXCLUDED.detail, updated_at = EXCLUDED.updated_at
	`, string(st.State), st.LastPayload, st.Detail, st.Timestamp)
	if err != nil {
		return fmt.Errorf("upserting upload status: %w", err)
	}
	return nil
}

func (p *Postgres) ClearStatus(ctx context.Context) error {
	if _, err := p.Pool.Exec(ctx, `DELETE FROM upload_status`); err != nil {
		return fmt.Errorf("clearing upload status: %w", err)
	}
	return nil
}

func (p *Postgres) GetSyncConfig(ctx context.Context) (*models.SyncConfig, error) {
	var cfg models.SyncConfig
	err := p.Pool.QueryRow(ctx, `
		SELECT access_key_id, secret_access_key, region, endpoint, bucket, object_key, interval_minutes
		FROM sync_settings WHERE id = 1
	`).Scan(&cfg.AccessKeyID, &cfg.SecretAccessKey, &cfg.Region, &cfg.Endpoint,
		&cfg.Bucket, &cfg.ObjectKey, &cfg.IntervalMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConfigUnset
	}
	if err != nil {
		return nil, fmt.Errorf("querying sync config: %w", err)
	}
	return &cfg, nil
}

func (p *Postgres) SaveSyncConfig(ctx context.Context, cfg models.SyncConfig) error {
	if err := validateConfig(&cfg); err != nil {
		return err
	}
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO sync_settings
			(id, access_key_id, secret_access_key, region, endpoint, bucket, object_key, interval_minutes)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
			SET access_key_id = EXCLUDED.access_key_id, secret_access_key = EXCLUDED.secret_access_key,
			    region = EXCLUDED.region, endpoint = EXCLUDED.endpoint, bucket = EXCLUDED.bucket,
			    object_key = EXCLUDED.object_key, interval_minutes = EXCLUDED.interval_minutes
	`, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.Region, cfg.Endpoint,
		cfg.Bucket, cfg.ObjectKey, cfg.IntervalMinutes)
	if err != nil {
		return fmt.Errorf("saving sync config: %w", err)
	}
	return nil
}

func (p *Postgres) ClearSyncConfig(ctx context.Context) error {
	if _, err := p.Pool.Exec(ctx, `DELETE FROM sync_settings`); err != nil {
		return fmt.Errorf("clearing sync config: %w", err)
	}
	return nil
}

func (p *Postgres) SetInterval(ctx context.Context, minutes int) error {
	if err := models.ValidateInterval(minutes); err != nil {
		return err
	}
	tag, err := p.Pool.Exec(ctx,
		`UPDATE sync_settings SET interval_minutes = $1 WHERE id = 1`, minutes)
	if err != nil {
		return fmt.Errorf("updating sync interval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigUnset
	}
	return nil
}

func (p *Postgres) SaveMetrics(ctx context.Context, m models.CachedMetrics) error {
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO metric_cache (id, step_count, active_minutes, resting_heart_rate, read_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
			SET step_count = EXCLUDED.step_count, active_minutes = EXCLUDED.active_minutes,
			    resting_heart_rate = EXCLUDED.resting_heart_rate, read_at = EXCLUDED.read_at
	`, m.StepCount, m.ActiveMinutes, m.RestingHeartRate, m.ReadAt)
	if err != nil {
		return fmt.Errorf("caching metrics: %w", err)
	}
	return nil
}

func (p *Postgres) GetMetrics(ctx context.Context) (*models.CachedMetrics, error) {
	var m models.CachedMetrics
	err := p.Pool.QueryRow(ctx,
		`SELECT step_count, active_minutes, resting_heart_rate, read_at FROM metric_cache WHERE id = 1`,
	).Scan(&m.StepCount, &m.ActiveMinutes, &m.RestingHeartRate, &m.ReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying metric cache: %w", err)
	}
	return &m, nil
}
