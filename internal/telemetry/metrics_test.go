package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCycle("host", "completed", 20*time.Millisecond)
	m.ObserveCycle("host", "completed", 10*time.Millisecond)
	m.ObserveCycle("manual", "failed", time.Millisecond)
	m.IncMetricRead("step_count", "ok")
	m.IncUpload("failed")
	m.SetLastSuccess(time.Unix(1700000000, 0))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("host", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("manual", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metricReads.WithLabelValues("step_count", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("failed")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastSuccess))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)
}

func TestNoopDoesNotPanic(t *testing.T) {
	var r Recorder = Noop{}
	r.ObserveCycle("host", "expired", time.Second)
	r.IncMetricRead("resting_heart_rate", "no_data")
	r.IncUpload("completed")
	r.SetLastSuccess(time.Now())
}
