// Package telemetry exposes Prometheus metrics for sync cycles.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is implemented by Metrics and Noop.
type Recorder interface {
	ObserveCycle(trigger, outcome string, duration time.Duration)
	IncMetricRead(metric, outcome string)
	IncUpload(outcome string)
	SetLastSuccess(t time.Time)
}

// Metrics records sync activity in a Prometheus registry.
type Metrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	metricReads   *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
}

// New registers the sync metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthtrack_sync_cycles_total",
			Help: "Sync cycles by trigger and outcome",
		}, []string{"trigger", "outcome"}),

		cycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healthtrack_sync_cycle_duration_seconds",
			Help:    "Duration of sync cycles in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"trigger"}),

		metricReads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthtrack_metric_reads_total",
			Help: "Health metric queries by metric and outcome",
		}, []string{"metric", "outcome"}),

		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthtrack_uploads_total",
			Help: "Snapshot uploads by outcome",
		}, []string{"outcome"}),

		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "healthtrack_last_success_timestamp_seconds",
			Help: "Unix time of the last completed upload",
		}),
	}
}

func (m *Metrics) ObserveCycle(trigger, outcome string, d time.Duration) {
	m.cycles.WithLabelValues(trigger, outcome).Inc()
	m.cycleDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

func (m *Metrics) IncMetricRead(metric, outcome string) {
	m.metricReads.WithLabelValues(metric, outcome).Inc()
}

func (m *Metrics) IncUpload(outcome string) {
	m.uploads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetLastSuccess(t time.Time) {
	m.lastSuccess.Set(float64(t.Unix()))
}

// Noop discards everything.
type Noop struct{}

func (Noop) ObserveCycle(_, _ string, _ time.Duration) {}
func (Noop) IncMetricRead(_, _ string)                  {}
func (Noop) IncUpload(_ string)                         {}
func (Noop) SetLastSuccess(_ time.Time)                 {}
