package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/claude/healthtrack/internal/models"
	"github.com/claude/healthtrack/internal/storage"
)

// Schedule requests the next run at now + interval. Without a valid
// SyncConfig nothing is queued.
func (c *Coordinator) Schedule(ctx context.Context) error {
	cfg, err := c.configs.GetSyncConfig(ctx)
	if errors.Is(err, storage.ErrConfigUnset) {
		c.log.Info("sync not configured, nothing scheduled")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading sync config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		c.log.Warn("sync config invalid, nothing scheduled", "error", err)
		return nil
	}

	if err := c.sched.Submit(cfg.Interval()); err != nil {
		return fmt.Errorf("submitting background task: %w", err)
	}
	return nil
}

// Reschedule drops pending requests and schedules afresh. Used at startup
// and whenever settings change.
func (c *Coordinator) Reschedule(ctx context.Context) error {
	c.sched.CancelAll()
	return c.Schedule(ctx)
}

// NextRun reports when the next background sync is due, if the scheduler
// can tell.
func (c *Coordinator) NextRun() (time.Time, bool) {
	if p, ok := c.sched.(pendingReporter); ok {
		return p.Pending()
	}
	return time.Time{}, false
}

// GetLastStatus returns the last recorded status, or Unknown if no attempt
// has run.
func (c *Coordinator) GetLastStatus(ctx context.Context) (*models.UploadStatus, error) {
	st, err := c.status.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		unknown := models.UnknownStatus()
		return &unknown, nil
	}
	return st, nil
}

// ResetStatus deletes the status record.
func (c *Coordinator) ResetStatus(ctx context.Context) error {
	return c.status.ClearStatus(ctx)
}

// GetInterval returns the configured interval in minutes.
func (c *Coordinator) GetInterval(ctx context.Context) (int, error) {
	cfg, err := c.configs.GetSyncConfig(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.IntervalMinutes, nil
}

// SetInterval persists a new interval and reschedules.
func (c *Coordinator) SetInterval(ctx context.Context, minutes int) error {
	if err := c.configs.SetInterval(ctx, minutes); err != nil {
		return err
	}
	c.log.Info("sync interval changed", "minutes", minutes)
	return c.Reschedule(ctx)
}

// GetSettings returns the saved SyncConfig.
func (c *Coordinator) GetSettings(ctx context.Context) (*models.SyncConfig, error) {
	return c.configs.GetSyncConfig(ctx)
}

// SaveSettings validates and persists cfg, then reschedules.
func (c *Coordinator) SaveSettings(ctx context.Context, cfg models.SyncConfig) error {
	if err := c.configs.SaveSyncConfig(ctx, cfg); err != nil {
		return err
	}
	c.log.Info("sync settings saved", "bucket", cfg.Bucket, "key", cfg.ObjectKey, "interval_minutes", cfg.IntervalMinutes)
	return c.Reschedule(ctx)
}

// ResetSettings clears the SyncConfig and drops pending requests.
func (c *Coordinator) ResetSettings(ctx context.Context) error {
	if err := c.configs.ClearSyncConfig(ctx); err != nil {
		return err
	}
	c.sched.CancelAll()
	c.log.Info("sync settings reset")
	return nil
}

// CachedMetrics returns the readings of the most recent cycle.
func (c *Coordinator) CachedMetrics(ctx context.Context) (*models.CachedMetrics, error) {
	if c.cache == nil {
		return nil, nil
	}
	return c.cache.GetMetrics(ctx)
}

// ReadLive reads the current metrics without uploading.
func (c *Coordinator) ReadLive(ctx context.Context) models.Snapshot {
	return c.reader.ReadSnapshot(ctx)
}
