package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const recentSessionsCount = 10

func (h *handlers) recentSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	history, err := h.ds.History(ctx)
	if err != nil {
		return nil, err
	}
	if len(history) > recentSessionsCount {
		history = history[:recentSessionsCount]
	}
	return jsonResource(req.Params.URI, history)
}

func (h *handlers) templates(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	templates, err := h.ds.Templates(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, templates)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
