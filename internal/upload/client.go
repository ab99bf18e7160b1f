// Package upload serializes a snapshot, sends it to object storage and
// records the outcome in the status store.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/healthtrack/internal/models"
	"github.com/claude/healthtrack/internal/storage"
	"github.com/claude/healthtrack/internal/telemetry"
)

var (
	// ErrConfig means no valid SyncConfig is established.
	ErrConfig = errors.New("sync config missing or invalid")
	// ErrUploadFailed means the transfer was attempted and failed.
	ErrUploadFailed = errors.New("upload failed")
	// ErrCancelled means the context ended before the transfer started.
	ErrCancelled = errors.New("upload cancelled before dispatch")
)

const contentType = "application/json"

// Client uploads snapshots. It is the only writer of the upload status.
type Client struct {
	configs       storage.ConfigStore
	status        storage.StatusStore
	store         ObjectStore
	log           *slog.Logger
	metrics       telemetry.Recorder
	now           func() time.Time
	statusTimeout time.Duration
}

// NewClient creates an upload Client. rec may be nil.
func NewClient(configs storage.ConfigStore, status storage.StatusStore, store ObjectStore, log *slog.Logger, rec telemetry.Recorder) *Client {
	if rec == nil {
		rec = telemetry.Noop{}
	}
	return &Client{
		configs:       configs,
		status:        status,
		store:         store,
		log:           log,
		metrics:       rec,
		now:           time.Now,
		statusTimeout: 10 * time.Second,
	}
}

// Upload sends the snapshot to the configured destination. Once the transfer
// has been attempted, exactly one status record is written before Upload
// returns, even if ctx has been cancelled in the meantime.
func (c *Client) Upload(ctx context.Context, snap models.Snapshot) error {
	cfg, err := c.config(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	body := snap.Payload()
	putErr := c.store.PutObject(ctx, PutRequest{
		Config:      *cfg,
		Body:        body,
		ContentType: contentType,
	})

	var st models.UploadStatus
	if putErr != nil {
		st = models.FailedStatus(body, putErr.Error(), c.now())
		c.metrics.IncUpload("failed")
		c.log.Warn("upload failed", "bucket", cfg.Bucket, "key", cfg.ObjectKey, "error", putErr)
	} else {
		st = models.CompletedStatus(body, c.now())
		c.metrics.IncUpload("completed")
		c.metrics.SetLastSuccess(st.Timestamp)
		c.log.Info("upload completed", "bucket", cfg.Bucket, "key", cfg.ObjectKey, "bytes", len(body))
	}

	statusErr := c.writeStatus(ctx, st)

	if putErr != nil {
		return errors.Join(fmt.Errorf("%w: %w", ErrUploadFailed, putErr), statusErr)
	}
	return statusErr
}

// config loads and validates the SyncConfig.
func (c *Client) config(ctx context.Context) (*models.SyncConfig, error) {
	cfg, err := c.configs.GetSyncConfig(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return cfg, nil
}

// writeStatus persists st on a context detached from ctx's cancellation.
func (c *Client) writeStatus(ctx context.Context, st models.UploadStatus) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.statusTimeout)
	defer cancel()

	if err := c.status.UpsertStatus(wctx, st); err != nil {
		c.log.Error("recording upload status", "state", st.State, "error", err)
		return fmt.Errorf("recording upload status: %w", err)
	}
	return nil
}
