package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/healthtrack/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Controller is the sync surface the HTTP API exposes.
// *coordinator.Coordinator implements it.
type Controller interface {
	TriggerManualSync(ctx context.Context) (*models.UploadStatus, error)
	GetLastStatus(ctx context.Context) (*models.UploadStatus, error)
	ResetStatus(ctx context.Context) error
	NextRun() (time.Time, bool)

	GetSettings(ctx context.Context) (*models.SyncConfig, error)
	SaveSettings(ctx context.Context, cfg models.SyncConfig) error
	ResetSettings(ctx context.Context) error
	GetInterval(ctx context.Context) (int, error)
	SetInterval(ctx context.Context, minutes int) error

	CachedMetrics(ctx context.Context) (*models.CachedMetrics, error)
	ReadLive(ctx context.Context) models.Snapshot
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	ctl    Controller
	log    *slog.Logger
	apiKey string
	router chi.Router
}

// New creates a new Server with all routes configured.
func New(ctl Controller, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		ctl:    ctl,
		log:    log,
		apiKey: apiKey,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))

		r.Post("/sync", s.handleSync)
		r.Get("/status", s.handleGetStatus)
		r.Delete("/status", s.handleResetStatus)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleSaveSettings)
		r.Delete("/settings", s.handleResetSettings)
		r.Get("/interval", s.handleGetInterval)
		r.Put("/interval", s.handleSetInterval)

		r.Get("/metrics/cached", s.handleCachedMetrics)
		r.Get("/metrics/live", s.handleLiveMetrics)
	})
}

// SetMetrics exposes the given registry at /metrics.
func (s *Server) SetMetrics(g prometheus.Gatherer) {
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

// SetMCP mounts the MCP streamable HTTP handler at /mcp behind API key auth.
func (s *Server) SetMCP(h http.Handler) {
	s.router.With(APIKeyAuth(s.apiKey)).Handle("/mcp", h)
}
