// Package storage persists the upload status, the user's sync settings and
// the last metric readings. SQLite is the default backend; Postgres is
// available for server deployments.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/healthtrack/internal/models"
)

// ErrConfigUnset is returned when no sync settings have been saved.
var ErrConfigUnset = errors.New("sync config not set")

// StatusStore holds the single record describing the last upload attempt.
type StatusStore interface {
	// GetStatus returns nil, nil when no attempt has been recorded.
	GetStatus(ctx context.Context) (*models.UploadStatus, error)
	// UpsertStatus replaces the record, or inserts it if absent. The write
	// is committed before it returns.
	UpsertStatus(ctx context.Context, status models.UploadStatus) error
	// ClearStatus deletes the record (explicit user reset).
	ClearStatus(ctx context.Context) error
}

// ConfigStore holds the user-supplied SyncConfig.
type ConfigStore interface {
	// GetSyncConfig returns ErrConfigUnset when nothing has been saved.
	GetSyncConfig(ctx context.Context) (*models.SyncConfig, error)
	SaveSyncConfig(ctx context.Context, cfg models.SyncConfig) error
	ClearSyncConfig(ctx context.Context) error
	// SetInterval updates the interval of the saved config.
	SetInterval(ctx context.Context, minutes int) error
}

// MetricCache keeps the values read by the most recent cycle.
type MetricCache interface {
	SaveMetrics(ctx context.Context, m models.CachedMetrics) error
	// GetMetrics returns nil, nil when nothing has been cached.
	GetMetrics(ctx context.Context) (*models.CachedMetrics, error)
}

// Store is implemented by every backend.
type Store interface {
	StatusStore
	ConfigStore
	MetricCache
	Close() error
}

// Compile-time checks.
var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Postgres)(nil)
)

// Open opens the backend named by driver ("sqlite" or "postgres").
// dir is the SQLite state directory; dsn is the Postgres connection string.
func Open(ctx context.Context, driver, dir, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return OpenSQLite(dir)
	case "postgres":
		if err := MigratePostgres(dsn); err != nil {
			return nil, err
		}
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown state driver %q", driver)
	}
}

// validateConfig runs SyncConfig validation at the store boundary.
func validateConfig(cfg *models.SyncConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("saving sync config: %w", err)
	}
	return nil
}
