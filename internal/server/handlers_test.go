package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claude/healthtrack/internal/models"
	"github.com/claude/healthtrack/internal/storage"
	"github.com/claude/healthtrack/internal/upload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-key"

type fakeController struct {
	syncStatus *models.UploadStatus
	syncErr    error

	status   *models.UploadStatus
	resets   int
	nextRun  time.Time
	settings *models.SyncConfig
	saved    []models.SyncConfig
	interval int
	setTo    []int
	setErr   error
	cached   *models.CachedMetrics
	live     models.Snapshot
}

func (f *fakeController) TriggerManualSync(ctx context.Context) (*models.UploadStatus, error) {
	return f.syncStatus, f.syncErr
}

func (f *fakeController) GetLastStatus(ctx context.Context) (*models.UploadStatus, error) {
	if f.status == nil {
		st := models.UnknownStatus()
		return &st, nil
	}
	return f.status, nil
}

func (f *fakeController) ResetStatus(ctx context.Context) error {
	f.resets++
	f.status = nil
	return nil
}

func (f *fakeController) NextRun() (time.Time, bool) {
	return f.nextRun, !f.nextRun.IsZero()
}

func (f *fakeController) GetSettings(ctx context.Context) (*models.SyncConfig, error) {
	if f.settings == nil {
		return nil, storage.ErrConfigUnset
	}
	return f.settings, nil
}

func (f *fakeController) SaveSettings(ctx context.Context, cfg models.SyncConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("saving sync config: %w", err)
	}
	f.saved = append(f.saved, cfg)
	f.settings = &cfg
	return nil
}

func (f *fakeController) ResetSettings(ctx context.Context) error {
	f.settings = nil
	return nil
}

func (f *fakeController) GetInterval(ctx context.Context) (int, error) {
	if f.settings == nil {
		return 0, storage.ErrConfigUnset
	}
	return f.settings.IntervalMinutes, nil
}

func (f *fakeController) SetInterval(ctx context.Context, minutes int) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setTo = append(f.setTo, minutes)
	return nil
}

func (f *fakeController) CachedMetrics(ctx context.Context) (*models.CachedMetrics, error) {
	return f.cached, nil
}

func (f *fakeController) ReadLive(ctx context.Context) models.Snapshot {
	return f.live
}

func testConfig() *models.SyncConfig {
	return &models.SyncConfig{
		AccessKeyID:     "AKID",
		SecretAccessKey: "secret",
		Region:          "eu-west-1",
		Bucket:          "health",
		ObjectKey:       "today.json",
		IntervalMinutes: 60,
	}
}

func newTestServer(ctl *fakeController) *Server {
	return New(ctl, testKey, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("X-API-Key", testKey)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&m))
	return m
}

func TestHealthzNoAuth(t *testing.T) {
	s := newTestServer(&fakeController{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresKey(t *testing.T) {
	s := newTestServer(&fakeController{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSyncCompleted(t *testing.T) {
	st := models.CompletedStatus([]byte(`{"numberSteps":1200}`), time.Unix(1700000000, 0))
	next := time.Unix(1700003600, 0).UTC()
	s := newTestServer(&fakeController{syncStatus: &st, nextRun: next})

	rec := do(t, s, http.MethodPost, "/api/v1/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "Completed", body["state"])
	assert.Equal(t, `{"numberSteps":1200}`, body["last_payload"])
	assert.Equal(t, next.Format(time.RFC3339), body["next_run"])
	assert.NotContains(t, body, "error")
}

func TestSyncUploadFailed(t *testing.T) {
	st := models.FailedStatus([]byte(`{}`), "NetworkUnreachable", time.Now())
	err := fmt.Errorf("%w: %w", upload.ErrUploadFailed, fmt.Errorf("NetworkUnreachable"))
	s := newTestServer(&fakeController{syncStatus: &st, syncErr: err})

	rec := do(t, s, http.MethodPost, "/api/v1/sync", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "Failed", body["state"])
	assert.Equal(t, "NetworkUnreachable", body["detail"])
	assert.Contains(t, body["error"], "NetworkUnreachable")
}

func TestSyncConfigUnset(t *testing.T) {
	err := fmt.Errorf("%w: %w", upload.ErrConfig, storage.ErrConfigUnset)
	s := newTestServer(&fakeController{syncErr: err})

	rec := do(t, s, http.MethodPost, "/api/v1/sync", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSyncCancelled(t *testing.T) {
	s := newTestServer(&fakeController{syncErr: upload.ErrCancelled})
	rec := do(t, s, http.MethodPost, "/api/v1/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusUnknownAndReset(t *testing.T) {
	st := models.CompletedStatus([]byte(`{}`), time.Now())
	ctl := &fakeController{status: &st}
	s := newTestServer(ctl)

	rec := do(t, s, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Completed", decode(t, rec)["state"])

	rec = do(t, s, http.MethodDelete, "/api/v1/status", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, ctl.resets)

	rec = do(t, s, http.MethodGet, "/api/v1/status", "")
	body := decode(t, rec)
	assert.Equal(t, "Unknown", body["state"])
	assert.NotContains(t, body, "next_run")
}

func TestSettingsRoundTrip(t *testing.T) {
	ctl := &fakeController{}
	s := newTestServer(ctl)

	rec := do(t, s, http.MethodGet, "/api/v1/settings", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	raw, err := json.Marshal(testConfig())
	require.NoError(t, err)
	rec = do(t, s, http.MethodPut, "/api/v1/settings", string(raw))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RedactedSecret, decode(t, rec)["secret_access_key"])

	rec = do(t, s, http.MethodGet, "/api/v1/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, models.RedactedSecret, body["secret_access_key"])
	assert.Equal(t, "health", body["bucket"])

	rec = do(t, s, http.MethodDelete, "/api/v1/settings", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, ctl.settings)
}

func TestSaveSettingsKeepsRedactedSecret(t *testing.T) {
	ctl := &fakeController{settings: testConfig()}
	s := newTestServer(ctl)

	cfg := testConfig().Redacted()
	cfg.Bucket = "other"
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	rec := do(t, s, http.MethodPut, "/api/v1/settings", string(raw))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ctl.saved, 1)
	assert.Equal(t, "secret", ctl.saved[0].SecretAccessKey)
	assert.Equal(t, "other", ctl.saved[0].Bucket)
}

func TestSaveSettingsEchoesDefaultRegion(t *testing.T) {
	ctl := &fakeController{}
	s := newTestServer(ctl)

	cfg := testConfig()
	cfg.Region = ""
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	rec := do(t, s, http.MethodPut, "/api/v1/settings", string(raw))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.DefaultRegion, decode(t, rec)["region"])
	require.Len(t, ctl.saved, 1)
	assert.Equal(t, models.DefaultRegion, ctl.saved[0].Region)
}

func TestSaveSettingsInvalid(t *testing.T) {
	s := newTestServer(&fakeController{})

	rec := do(t, s, http.MethodPut, "/api/v1/settings", `{"bucket":"b"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/v1/settings", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInterval(t *testing.T) {
	ctl := &fakeController{settings: testConfig()}
	s := newTestServer(ctl)

	rec := do(t, s, http.MethodGet, "/api/v1/interval", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 60, decode(t, rec)["minutes"])

	rec = do(t, s, http.MethodPut, "/api/v1/interval", `{"minutes":15}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{15}, ctl.setTo)

	for _, bad := range []string{`{"minutes":0}`, `{"minutes":1441}`, `{"minutes":"x"}`} {
		rec = do(t, s, http.MethodPut, "/api/v1/interval", bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
	assert.Equal(t, []int{15}, ctl.setTo)
}

func TestIntervalUnset(t *testing.T) {
	s := newTestServer(&fakeController{setErr: storage.ErrConfigUnset})

	rec := do(t, s, http.MethodGet, "/api/v1/interval", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/v1/interval", `{"minutes":30}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMetricsEndpoints(t *testing.T) {
	steps := int64(1200)
	ctl := &fakeController{
		live: models.NewSnapshot(models.Readings{}, time.Unix(1700000000, 0)),
	}
	s := newTestServer(ctl)

	rec := do(t, s, http.MethodGet, "/api/v1/metrics/cached", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ctl.cached = &models.CachedMetrics{StepCount: &steps, ReadAt: time.Unix(1700000000, 0)}
	rec = do(t, s, http.MethodGet, "/api/v1/metrics/cached", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1200, decode(t, rec)["step_count"])

	rec = do(t, s, http.MethodGet, "/api/v1/metrics/live", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"numberSteps":null,"activeMinutes":null,"restingHeartRate":null,"uploadDate":1700000000}`,
		rec.Body.String())
}

func TestPrometheusEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "healthtrack_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := newTestServer(&fakeController{})
	s.SetMetrics(reg)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthtrack_test_total 1")
}
