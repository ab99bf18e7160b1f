package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStorePut(t *testing.T) {
	var (
		gotMethod, gotPath, gotType, gotKey string
		gotBody                             []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.EscapedPath()
		gotType = r.Header.Get("Content-Type")
		gotKey = r.Header.Get("X-API-Key")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cfg := validConfig()
	cfg.ObjectKey = "daily/today file.json"
	s := NewHTTPStore(srv.URL+"/", "k1")

	err := s.PutObject(context.Background(), PutRequest{Config: cfg, Body: []byte(`{"a":1}`), ContentType: "application/json"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/health/daily/today%20file.json", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "k1", gotKey)
	assert.Equal(t, `{"a":1}`, string(gotBody))
}

func TestHTTPStoreNoAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-API-Key"))
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL, "")
	require.NoError(t, s.PutObject(context.Background(), PutRequest{Config: validConfig(), Body: []byte(`{}`)}))
}

func TestHTTPStoreErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket not found", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL, "")
	err := s.PutObject(context.Background(), PutRequest{Config: validConfig(), Body: []byte(`{}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "bucket not found")
}

func TestHTTPStoreUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewHTTPStore(url, "")
	assert.Error(t, s.PutObject(context.Background(), PutRequest{Config: validConfig(), Body: []byte(`{}`)}))
}
