package mcp

import (
	"context"

	"github.com/claude/healthtrack/internal/coordinator"
	"github.com/claude/healthtrack/internal/models"
)

// Backend is the sync surface MCP tools operate on. Both
// *coordinator.Coordinator (local) and HTTPClient (remote via REST API)
// satisfy this interface.
type Backend interface {
	GetLastStatus(ctx context.Context) (*models.UploadStatus, error)
	TriggerManualSync(ctx context.Context) (*models.UploadStatus, error)
	GetInterval(ctx context.Context) (int, error)
	SetInterval(ctx context.Context, minutes int) error
	CachedMetrics(ctx context.Context) (*models.CachedMetrics, error)
}

// Compile-time check: *coordinator.Coordinator satisfies Backend.
var _ Backend = (*coordinator.Coordinator)(nil)
