package mcp

import (
	"context"
	"errors"

	"github.com/claude/healthtrack/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

var errNoPayload = errors.New("no upload attempt recorded")

func (h *handlers) lastPayload(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	st, err := h.b.GetLastStatus(ctx)
	if err != nil {
		return nil, err
	}
	if st.State == models.UploadUnknown || st.LastPayload == "" {
		return nil, errNoPayload
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     st.LastPayload,
		},
	}, nil
}
