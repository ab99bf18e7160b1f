package health

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/claude/healthtrack/internal/models"
	"github.com/claude/healthtrack/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// Reader builds a Snapshot of today's metrics from a Source.
type Reader struct {
	source  Source
	log     *slog.Logger
	metrics telemetry.Recorder
	now     func() time.Time
}

// NewReader creates a Reader. rec may be nil.
func NewReader(source Source, log *slog.Logger, rec telemetry.Recorder) *Reader {
	if rec == nil {
		rec = telemetry.Noop{}
	}
	return &Reader{source: source, log: log, metrics: rec, now: time.Now}
}

// ReadSnapshot queries the three metrics concurrently and never fails: a
// metric whose query fails, is unauthorized or has no data is left absent.
func (r *Reader) ReadSnapshot(ctx context.Context) models.Snapshot {
	now := r.now()
	start, end := DayRange(now)

	var readings models.Readings
	targets := []struct {
		metric Metric
		dst    **float64
	}{
		{StepCount, &readings.StepCount},
		{ExerciseMinutes, &readings.ActiveMinutes},
		{RestingHeartRate, &readings.RestingHeartRate},
	}

	// Each goroutine writes only its own destination; Wait joins them.
	var g errgroup.Group
	for _, tgt := range targets {
		g.Go(func() error {
			if v, ok := r.query(ctx, tgt.metric, start, end); ok {
				*tgt.dst = &v
			}
			return nil
		})
	}
	_ = g.Wait()

	return models.NewSnapshot(readings, now)
}

// query runs one metric query and contains its failure.
func (r *Reader) query(ctx context.Context, m Metric, start, end time.Time) (float64, bool) {
	if err := ctx.Err(); err != nil {
		r.log.Info("metric query skipped", "metric", m.Name, "reason", err)
		r.metrics.IncMetricRead(m.Name, "cancelled")
		return 0, false
	}

	v, err := r.source.QueryAggregate(ctx, m, start, end)
	switch {
	case err == nil:
		r.metrics.IncMetricRead(m.Name, "ok")
		return v, true
	case errors.Is(err, ErrNoData):
		r.log.Info("no data for metric", "metric", m.Name)
		r.metrics.IncMetricRead(m.Name, "no_data")
	case errors.Is(err, ErrNotAuthorized):
		r.log.Info("metric not authorized", "metric", m.Name)
		r.metrics.IncMetricRead(m.Name, "not_authorized")
	case ctx.Err() != nil:
		r.log.Info("metric query cancelled", "metric", m.Name)
		r.metrics.IncMetricRead(m.Name, "cancelled")
	default:
		r.log.Warn("metric query failed", "metric", m.Name, "error", err)
		r.metrics.IncMetricRead(m.Name, "error")
	}
	return 0, false
}
