package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/claude/healthtrack/internal/models"
	"github.com/claude/healthtrack/internal/storage"
	"github.com/claude/healthtrack/internal/upload"
)

// HTTPClient implements Backend by calling the healthtrack REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but the
// daemon runs elsewhere (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies Backend.
var _ Backend = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// Manual syncs wait on the daemon's lock and the upload itself.
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// apiError is a non-2xx response from the REST API.
type apiError struct {
	path    string
	status  int
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("httpclient: %s returned %d: %s", e.path, e.status, e.message)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := string(data)
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return data, &apiError{path: path, status: resp.StatusCode, message: msg}
	}
	return data, nil
}

func statusOf(err error) int {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status
	}
	return 0
}

func (c *HTTPClient) GetLastStatus(ctx context.Context) (*models.UploadStatus, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/status", nil)
	if err != nil {
		return nil, err
	}
	var st models.UploadStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("httpclient: decode status: %w", err)
	}
	return &st, nil
}

// TriggerManualSync maps the API's status codes back onto the upload
// sentinels so callers see the same errors as in-process.
func (c *HTTPClient) TriggerManualSync(ctx context.Context) (*models.UploadStatus, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v1/sync", nil)
	switch statusOf(err) {
	case 0:
		if err != nil {
			return nil, err
		}
	case http.StatusConflict:
		return nil, fmt.Errorf("%w: %w", upload.ErrConfig, err)
	case http.StatusBadGateway:
		var st models.UploadStatus
		if decodeErr := json.Unmarshal(body, &st); decodeErr != nil {
			return nil, fmt.Errorf("%w: %w", upload.ErrUploadFailed, err)
		}
		return &st, fmt.Errorf("%w: %w", upload.ErrUploadFailed, err)
	case http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: %w", upload.ErrCancelled, err)
	default:
		return nil, err
	}

	var st models.UploadStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("httpclient: decode status: %w", err)
	}
	return &st, nil
}

func (c *HTTPClient) GetInterval(ctx context.Context) (int, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/interval", nil)
	if statusOf(err) == http.StatusNotFound {
		return 0, storage.ErrConfigUnset
	}
	if err != nil {
		return 0, err
	}
	var resp struct {
		Minutes int `json:"minutes"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("httpclient: decode interval: %w", err)
	}
	return resp.Minutes, nil
}

func (c *HTTPClient) SetInterval(ctx context.Context, minutes int) error {
	_, err := c.do(ctx, http.MethodPut, "/api/v1/interval", map[string]int{"minutes": minutes})
	switch statusOf(err) {
	case http.StatusConflict:
		return storage.ErrConfigUnset
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %w", models.ErrInvalidSyncConfig, err)
	}
	return err
}

// CachedMetrics returns nil, nil when the daemon has nothing cached.
func (c *HTTPClient) CachedMetrics(ctx context.Context) (*models.CachedMetrics, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/metrics/cached", nil)
	if statusOf(err) == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m models.CachedMetrics
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("httpclient: decode cached metrics: %w", err)
	}
	return &m, nil
}
