// Package coordinator runs sync cycles: read today's metrics, upload the
// snapshot, and schedule the next attempt. Host-delivered tasks and manual
// triggers share one exclusive lock so cycles never overlap.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/healthtrack/internal/models"
	"github.com/claude/healthtrack/internal/scheduler"
	"github.com/claude/healthtrack/internal/storage"
	"github.com/claude/healthtrack/internal/telemetry"
	"github.com/claude/healthtrack/internal/upload"
	"github.com/google/uuid"
)

// ErrExpired means the host's execution budget ran out before the cycle
// finished. The next attempt is still scheduled.
var ErrExpired = errors.New("background task expired")

const defaultExpiryGrace = 5 * time.Second

// SnapshotReader reads the current metrics.
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context) models.Snapshot
}

// Uploader uploads a snapshot and records the outcome.
type Uploader interface {
	Upload(ctx context.Context, snap models.Snapshot) error
}

// pendingReporter is implemented by schedulers that can report their next run.
type pendingReporter interface {
	Pending() (time.Time, bool)
}

// Coordinator is the single sync coordinator of the process.
type Coordinator struct {
	reader   SnapshotReader
	uploader Uploader
	configs  storage.ConfigStore
	status   storage.StatusStore
	cache    storage.MetricCache
	sched    scheduler.Scheduler

	// lock is a single-slot semaphore held for read + upload + status write.
	lock chan struct{}

	log         *slog.Logger
	metrics     telemetry.Recorder
	expiryGrace time.Duration
	now         func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics sets the telemetry recorder.
func WithMetrics(rec telemetry.Recorder) Option {
	return func(c *Coordinator) {
		c.metrics = rec
	}
}

// WithExpiryGrace bounds how long an expiring task waits for the cycle to
// release the lock before the expiry is reported to the host.
func WithExpiryGrace(d time.Duration) Option {
	return func(c *Coordinator) {
		c.expiryGrace = d
	}
}

// WithMetricCache sets where each cycle's readings are cached.
func WithMetricCache(cache storage.MetricCache) Option {
	return func(c *Coordinator) {
		c.cache = cache
	}
}

// New creates a Coordinator.
func New(
	reader SnapshotReader,
	uploader Uploader,
	configs storage.ConfigStore,
	status storage.StatusStore,
	sched scheduler.Scheduler,
	log *slog.Logger,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		reader:      reader,
		uploader:    uploader,
		configs:     configs,
		status:      status,
		sched:       sched,
		lock:        make(chan struct{}, 1),
		log:         log,
		metrics:     telemetry.Noop{},
		expiryGrace: defaultExpiryGrace,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleTask runs a cycle in a host-granted slot. Exactly one outcome is
// reported to the task and exactly one follow-up is scheduled. It returns
// nil on success, the upload error on failure, or ErrExpired.
func (c *Coordinator) HandleTask(task scheduler.Task) error {
	log := c.log.With("cycle", uuid.NewString(), "trigger", "host")
	start := c.now()

	ctx, cancel := context.WithCancel(task.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.runCycle(ctx, log)
	}()

	var result error
	select {
	case err := <-done:
		result = err
		task.Complete(err == nil)
	case <-task.Expired():
		result = ErrExpired
		cancel()
		select {
		case <-done:
		case <-time.After(c.expiryGrace):
			log.Warn("cycle did not unwind within expiry grace", "grace", c.expiryGrace)
		}
		task.Complete(false)
	}

	c.observe(log, "host", result, c.now().Sub(start))

	if err := c.Schedule(context.Background()); err != nil {
		log.Error("scheduling next sync", "error", err)
	}
	return result
}

// TriggerManualSync runs a cycle on the caller's behalf, waiting for any
// running cycle to finish first. It returns the recorded status and the
// upload error, if any, and schedules the next attempt.
func (c *Coordinator) TriggerManualSync(ctx context.Context) (*models.UploadStatus, error) {
	log := c.log.With("cycle", uuid.NewString(), "trigger", "manual")
	start := c.now()

	err := c.runCycle(ctx, log)
	c.observe(log, "manual", err, c.now().Sub(start))

	if schedErr := c.Schedule(context.WithoutCancel(ctx)); schedErr != nil {
		log.Error("scheduling next sync", "error", schedErr)
	}

	st, stErr := c.GetLastStatus(context.WithoutCancel(ctx))
	if stErr != nil {
		return nil, errors.Join(err, stErr)
	}
	return st, err
}

// runCycle is the critical section: read, cache, upload.
func (c *Coordinator) runCycle(ctx context.Context, log *slog.Logger) error {
	if err := c.acquire(ctx); err != nil {
		log.Info("sync cycle abandoned while waiting for lock", "error", err)
		return fmt.Errorf("waiting for sync lock: %w", err)
	}
	defer c.release()

	if err := c.requireConfig(ctx); err != nil {
		log.Info("sync cycle skipped", "error", err)
		return err
	}

	log.Info("sync cycle started")
	snap := c.reader.ReadSnapshot(ctx)
	c.cacheSnapshot(ctx, log, snap)

	if err := c.uploader.Upload(ctx, snap); err != nil {
		return err
	}
	return nil
}

// requireConfig fails with upload.ErrConfig when no valid SyncConfig is
// saved, so an unconfigured cycle reads nothing.
func (c *Coordinator) requireConfig(ctx context.Context) error {
	cfg, err := c.configs.GetSyncConfig(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", upload.ErrCancelled, ctxErr)
		}
		return fmt.Errorf("%w: %w", upload.ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", upload.ErrConfig, err)
	}
	return nil
}

func (c *Coordinator) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case c.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) release() {
	<-c.lock
}

func (c *Coordinator) cacheSnapshot(ctx context.Context, log *slog.Logger, snap models.Snapshot) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SaveMetrics(context.WithoutCancel(ctx), models.CachedFromSnapshot(snap, c.now())); err != nil {
		log.Warn("caching metrics", "error", err)
	}
}

func (c *Coordinator) observe(log *slog.Logger, trigger string, err error, d time.Duration) {
	outcome := outcomeOf(err)
	c.metrics.ObserveCycle(trigger, outcome, d)

	switch outcome {
	case "completed":
		log.Info("sync cycle completed", "duration", d)
	case "expired":
		log.Warn("sync cycle expired", "duration", d)
	default:
		log.Warn("sync cycle failed", "outcome", outcome, "duration", d, "error", err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}
