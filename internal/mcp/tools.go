package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/healthtrack/internal/models"
	"github.com/claude/healthtrack/internal/storage"
	"github.com/mark3labs/mcp-go/mcp"
)

var toolGetUploadStatus = mcp.NewTool("get_upload_status",
	mcp.WithDescription("Outcome of the most recent upload: Completed, Failed (with detail) or Unknown if none has run, plus the payload and time."),
)

var toolTriggerSync = mcp.NewTool("trigger_sync",
	mcp.WithDescription("Read today's metrics and upload them now. Waits for any running sync to finish first."),
)

var toolGetSyncInterval = mcp.NewTool("get_sync_interval",
	mcp.WithDescription("Minutes between background syncs."),
)

var toolSetSyncInterval = mcp.NewTool("set_sync_interval",
	mcp.WithDescription("Change the minutes between background syncs. The next run is rescheduled from now."),
	mcp.WithNumber("minutes", mcp.Required(),
		mcp.Description(fmt.Sprintf("Interval in minutes (%d-%d)", models.MinIntervalMinutes, models.MaxIntervalMinutes)),
		mcp.Min(models.MinIntervalMinutes), mcp.Max(models.MaxIntervalMinutes)),
)

var toolGetCachedMetrics = mcp.NewTool("get_cached_metrics",
	mcp.WithDescription("Metric values read by the most recent sync, with the time they were read. Absent metrics are null."),
)

func (h *handlers) getUploadStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := h.b.GetLastStatus(ctx)
	if err != nil {
		h.log.Error("mcp get_upload_status", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(st)
}

func (h *handlers) triggerSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := h.b.TriggerManualSync(ctx)
	if err != nil {
		h.log.Warn("mcp trigger_sync", "error", err)
		return mcp.NewToolResultError("sync failed: " + err.Error()), nil
	}
	return jsonResult(st)
}

func (h *handlers) getSyncInterval(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	minutes, err := h.b.GetInterval(ctx)
	if errors.Is(err, storage.ErrConfigUnset) {
		return mcp.NewToolResultError("sync is not configured"), nil
	}
	if err != nil {
		h.log.Error("mcp get_sync_interval", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(map[string]int{"minutes": minutes})
}

func (h *handlers) setSyncInterval(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	minutes, err := req.RequireInt("minutes")
	if err != nil {
		return mcp.NewToolResultError("minutes parameter is required"), nil
	}
	if err := models.ValidateInterval(minutes); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	err = h.b.SetInterval(ctx, minutes)
	if errors.Is(err, storage.ErrConfigUnset) {
		return mcp.NewToolResultError("sync is not configured"), nil
	}
	if err != nil {
		h.log.Error("mcp set_sync_interval", "error", err)
		return mcp.NewToolResultError("update failed: " + err.Error()), nil
	}
	return jsonResult(map[string]int{"minutes": minutes})
}

func (h *handlers) getCachedMetrics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := h.b.CachedMetrics(ctx)
	if err != nil {
		h.log.Error("mcp get_cached_metrics", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	if m == nil {
		return mcp.NewToolResultText("no metrics cached yet"), nil
	}
	return jsonResult(m)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
