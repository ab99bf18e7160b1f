package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(b Backend, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("HealthTrack", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("HealthTrack sync daemon. Inspect the last upload of today's step count, exercise minutes and resting heart rate, trigger a sync, and change how often it runs."),
	)

	h := &handlers{b: b, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolGetUploadStatus, Handler: h.getUploadStatus},
		server.ServerTool{Tool: toolTriggerSync, Handler: h.triggerSync},
		server.ServerTool{Tool: toolGetSyncInterval, Handler: h.getSyncInterval},
		server.ServerTool{Tool: toolSetSyncInterval, Handler: h.setSyncInterval},
		server.ServerTool{Tool: toolGetCachedMetrics, Handler: h.getCachedMetrics},
	)

	s.AddResources(
		server.ServerResource{Resource: resLastPayload, Handler: h.lastPayload},
	)

	return s
}

type handlers struct {
	b   Backend
	log *slog.Logger
}

var resLastPayload = mcp.NewResource(
	"healthtrack://last_payload",
	"Last uploaded payload",
	mcp.WithResourceDescription("The JSON document sent in the most recent upload attempt, whether it succeeded or not."),
	mcp.WithMIMEType("application/json"),
)
