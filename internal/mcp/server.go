// Package mcp exposes the trelog record set to MCP clients: search,
// summaries, templates, import history and backup export.
package mcp

import (
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("trelog", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithInstructions("trelog training log. Search logged strength sessions, summarize volume and RPE by month or week, list templates and import history, and export backups."),
	)

	h := &handlers{ds: ds, log: log, now: time.Now}

	s.AddTools(
		server.ServerTool{Tool: toolSearchSessions, Handler: h.searchSessions},
		server.ServerTool{Tool: toolGetSession, Handler: h.getSession},
		server.ServerTool{Tool: toolGetTrainingSummary, Handler: h.getTrainingSummary},
		server.ServerTool{Tool: toolListTemplates, Handler: h.listTemplates},
		server.ServerTool{Tool: toolListImportLogs, Handler: h.listImportLogs},
		server.ServerTool{Tool: toolExportBackup, Handler: h.exportBackup},
	)

	s.AddResources(
		server.ServerResource{Resource: resRecentSessions, Handler: h.recentSessions},
		server.ServerResource{Resource: resTemplates, Handler: h.templates},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
	now func() time.Time
}

// --- Resource definitions ---

var resRecentSessions = mcp.NewResource(
	"trelog://recent_sessions",
	"Recent Sessions",
	mcp.WithResourceDescription("The most recently logged training sessions, newest first"),
	mcp.WithMIMEType("application/json"),
)

var resTemplates = mcp.NewResource(
	"trelog://templates",
	"Templates",
	mcp.WithResourceDescription("All saved session templates"),
	mcp.WithMIMEType("application/json"),
)
