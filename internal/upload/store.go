package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/claude/healthtrack/internal/models"
)

// PutRequest is a single object write.
type PutRequest struct {
	Config      models.SyncConfig
	Body        []byte
	ContentType string
}

// ObjectStore writes an object to remote storage.
type ObjectStore interface {
	PutObject(ctx context.Context, req PutRequest) error
}

// HTTPStore writes objects with PUT {baseURL}/{bucket}/{key}, for plain HTTP
// object endpoints that do not speak the S3 API.
type HTTPStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPStore creates an HTTPStore. apiKey is sent as X-API-Key when set.
func NewHTTPStore(baseURL, apiKey string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (h *HTTPStore) PutObject(ctx context.Context, req PutRequest) error {
	target := h.baseURL + "/" + url.PathEscape(req.Config.Bucket) + "/" + escapeKey(req.Config.ObjectKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(req.Body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", req.ContentType)
	if h.apiKey != "" {
		httpReq.Header.Set("X-API-Key", h.apiKey)
	}

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("put failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// escapeKey escapes each path segment of an object key.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
