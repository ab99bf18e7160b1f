// Package app wires the components shared by the daemon and the one-shot
// CLI from a loaded config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/claude/healthtrack/internal/config"
	"github.com/claude/healthtrack/internal/health"
	"github.com/claude/healthtrack/internal/storage"
	"github.com/claude/healthtrack/internal/telemetry"
	"github.com/claude/healthtrack/internal/upload"
)

// Components are the sync pipeline pieces built from config.
type Components struct {
	Store    storage.Store
	Reader   *health.Reader
	Uploader *upload.Client
}

// Build opens the state store, seeds the sync config if needed and builds
// the reader and upload client. Close the returned Components when done.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger, rec telemetry.Recorder) (*Components, error) {
	store, err := storage.Open(ctx, cfg.State.Driver, cfg.State.Dir, cfg.StateDSN())
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	if err := Seed(ctx, store, cfg, log); err != nil {
		store.Close()
		return nil, err
	}

	source := health.NewHAESource(cfg.Health.Host, cfg.Health.Port, cfg.Health.Timeout, log)
	objects := NewObjectStore(cfg.Destination)

	return &Components{
		Store:    store,
		Reader:   health.NewReader(source, log, rec),
		Uploader: upload.NewClient(store, store, objects, log, rec),
	}, nil
}

// Close releases the state store.
func (c *Components) Close() error {
	return c.Store.Close()
}

// Seed writes cfg.Seed to the config store when no SyncConfig is saved.
// A saved config always wins over the seed.
func Seed(ctx context.Context, store storage.ConfigStore, cfg *config.Config, log *slog.Logger) error {
	if cfg.Seed == nil {
		return nil
	}
	_, err := store.GetSyncConfig(ctx)
	if err == nil {
		log.Debug("sync config already saved, seed ignored")
		return nil
	}
	if !errors.Is(err, storage.ErrConfigUnset) {
		return fmt.Errorf("checking sync config: %w", err)
	}
	if err := store.SaveSyncConfig(ctx, *cfg.Seed); err != nil {
		return fmt.Errorf("seeding sync config: %w", err)
	}
	log.Info("sync config seeded from file", "bucket", cfg.Seed.Bucket, "key", cfg.Seed.ObjectKey)
	return nil
}

// NewObjectStore returns the upload destination named by the config.
func NewObjectStore(d config.DestinationConfig) upload.ObjectStore {
	if d.Type == "http" {
		return upload.NewHTTPStore(d.BaseURL, d.APIKey)
	}
	return upload.NewS3Store()
}
