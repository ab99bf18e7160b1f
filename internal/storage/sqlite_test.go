package storage

import (
	"context"
	"testing"
	"time"

	"github.com/claude/healthtrack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig() models.SyncConfig {
	return models.SyncConfig{
		AccessKeyID:     "AKID",
		SecretAccessKey: "secret",
		Bucket:          "health",
		ObjectKey:       "today.json",
		IntervalMinutes: 30,
	}
}

func TestSQLiteStatusEmpty(t *testing.T) {
	s := openTestSQLite(t)

	st, err := s.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestSQLiteStatusUpsertReplaces(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	first := models.FailedStatus([]byte(`{"a":1}`), "timeout", time.Unix(100, 0))
	require.NoError(t, s.UpsertStatus(ctx, first))

	second := models.CompletedStatus([]byte(`{"a":2}`), time.Unix(200, 5))
	require.NoError(t, s.UpsertStatus(ctx, second))

	got, err := s.GetStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.UploadCompleted, got.State)
	assert.Equal(t, `{"a":2}`, got.LastPayload)
	assert.Nil(t, got.Detail)
	assert.True(t, got.Timestamp.Equal(time.Unix(200, 5)))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM upload_status`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteStatusDetailRoundTrip(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertStatus(ctx, models.FailedStatus([]byte(`{}`), "NetworkUnreachable", time.Unix(1, 0))))

	got, err := s.GetStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.Detail)
	assert.Equal(t, "NetworkUnreachable", *got.Detail)
}

func TestSQLiteStatusRejectsUnknownState(t *testing.T) {
	s := openTestSQLite(t)

	err := s.UpsertStatus(context.Background(), models.UploadStatus{State: "Running", Timestamp: time.Now()})
	assert.Error(t, err)
}

func TestSQLiteStatusClear(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertStatus(ctx, models.CompletedStatus([]byte(`{}`), time.Now())))
	require.NoError(t, s.ClearStatus(ctx))

	got, err := s.GetStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStatusSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenSQLite(dir)
	require.NoError(t, err)
	require.NoError(t, s.UpsertStatus(ctx, models.CompletedStatus([]byte(`{"x":1}`), time.Unix(10, 0))))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"x":1}`, got.LastPayload)
}

func TestSQLiteSyncConfig(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	_, err := s.GetSyncConfig(ctx)
	assert.ErrorIs(t, err, ErrConfigUnset)

	require.NoError(t, s.SaveSyncConfig(ctx, testConfig()))

	got, err := s.GetSyncConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "health", got.Bucket)
	assert.Equal(t, models.DefaultRegion, got.Region)
	assert.Equal(t, 30, got.IntervalMinutes)

	require.NoError(t, s.SetInterval(ctx, 120))
	got, err = s.GetSyncConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120, got.IntervalMinutes)

	require.NoError(t, s.ClearSyncConfig(ctx))
	_, err = s.GetSyncConfig(ctx)
	assert.ErrorIs(t, err, ErrConfigUnset)
}

func TestSQLiteSyncConfigValidation(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	bad := testConfig()
	bad.Bucket = ""
	assert.ErrorIs(t, s.SaveSyncConfig(ctx, bad), models.ErrInvalidSyncConfig)

	assert.ErrorIs(t, s.SetInterval(ctx, 60), ErrConfigUnset)

	require.NoError(t, s.SaveSyncConfig(ctx, testConfig()))
	assert.ErrorIs(t, s.SetInterval(ctx, 0), models.ErrInvalidSyncConfig)
	assert.ErrorIs(t, s.SetInterval(ctx, 1441), models.ErrInvalidSyncConfig)
}

func TestSQLiteMetricCache(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	got, err := s.GetMetrics(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	steps := int64(4200)
	hr := 55.5
	readAt := time.Unix(1700000000, 0)
	require.NoError(t, s.SaveMetrics(ctx, models.CachedMetrics{
		StepCount:        &steps,
		RestingHeartRate: &hr,
		ReadAt:           readAt,
	}))

	got, err = s.GetMetrics(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.StepCount)
	assert.EqualValues(t, 4200, *got.StepCount)
	assert.Nil(t, got.ActiveMinutes)
	require.NotNil(t, got.RestingHeartRate)
	assert.Equal(t, 55.5, *got.RestingHeartRate)
	assert.True(t, got.ReadAt.Equal(readAt))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", t.TempDir(), "")
	assert.Error(t, err)
}
