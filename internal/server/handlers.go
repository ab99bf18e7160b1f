package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/claude/healthtrack/internal/models"
	"github.com/claude/healthtrack/internal/storage"
	"github.com/claude/healthtrack/internal/upload"
)

// statusResponse is an UploadStatus plus scheduling info and, for failed
// manual syncs, the error.
type statusResponse struct {
	*models.UploadStatus
	NextRun *time.Time `json:"next_run,omitempty"`
	Error   string     `json:"error,omitempty"`
}

type intervalRequest struct {
	Minutes int `json:"minutes"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctl.TriggerManualSync(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.statusResponse(st))
	case errors.Is(err, upload.ErrConfig):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, upload.ErrUploadFailed) && st != nil:
		resp := s.statusResponse(st)
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
	case errors.Is(err, upload.ErrCancelled), errors.Is(err, context.Canceled):
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
	default:
		s.log.Error("manual sync", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
	}
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctl.GetLastStatus(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, s.statusResponse(st))
}

func (s *Server) handleResetStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.ResetStatus(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.ctl.GetSettings(r.Context())
	if errors.Is(err, storage.ErrConfigUnset) {
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var cfg models.SyncConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON: "+err.Error()))
		return
	}

	// A redacted secret sent back unchanged keeps the stored one.
	if cfg.SecretAccessKey == models.RedactedSecret {
		current, err := s.ctl.GetSettings(r.Context())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("secret_access_key is required"))
			return
		}
		cfg.SecretAccessKey = current.SecretAccessKey
	}

	// Validate fills defaults, so the response matches what is stored.
	if err := cfg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := s.ctl.SaveSettings(r.Context(), cfg); err != nil {
		writeJSON(w, statusFor(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.ResetSettings(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetInterval(w http.ResponseWriter, r *http.Request) {
	minutes, err := s.ctl.GetInterval(r.Context())
	if errors.Is(err, storage.ErrConfigUnset) {
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, intervalRequest{Minutes: minutes})
}

func (s *Server) handleSetInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON: "+err.Error()))
		return
	}
	if err := models.ValidateInterval(req.Minutes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := s.ctl.SetInterval(r.Context(), req.Minutes); err != nil {
		writeJSON(w, statusFor(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleCachedMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.ctl.CachedMetrics(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	if m == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no metrics cached yet"))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleLiveMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.ReadLive(r.Context()))
}

func (s *Server) statusResponse(st *models.UploadStatus) statusResponse {
	resp := statusResponse{UploadStatus: st}
	if next, ok := s.ctl.NextRun(); ok {
		resp.NextRun = &next
	}
	return resp
}

// statusFor maps settings errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidSyncConfig):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrConfigUnset):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
