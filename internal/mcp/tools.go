package mcp

import (
	"context"
	"time"

	"github.com/claude/trelog/internal/export"
	"github.com/claude/trelog/internal/models"
	"github.com/claude/trelog/internal/search"
	"github.com/claude/trelog/internal/summary"
	"github.com/mark3labs/mcp-go/mcp"
)

// dateBounds normalizes optional start/end bounds to yyyy-mm-dd. Empty
// bounds stay empty and leave that side open.
func dateBounds(startStr, endStr string) (string, string, error) {
	var start, end string
	if startStr != "" {
		t, err := parseFlexTime(startStr)
		if err != nil {
			return "", "", err
		}
		start = t.Format(time.DateOnly)
	}
	if endStr != "" {
		t, err := parseFlexTime(endStr)
		if err != nil {
			return "", "", err
		}
		end = t.Format(time.DateOnly)
	}
	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.DateOnly, s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// inRange compares dates lexically; yyyy-mm-dd sorts chronologically.
func inRange(date, start, end string) bool {
	if start != "" && date < start {
		return false
	}
	if end != "" && date > end {
		return false
	}
	return true
}

// selectSessions applies the shared query/only_with_sets/start/end arguments.
func (h *handlers) selectSessions(ctx context.Context, req mcp.CallToolRequest) ([]models.Session, *mcp.CallToolResult) {
	start, end, err := dateBounds(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return nil, mcp.NewToolResultError("invalid date format: " + err.Error())
	}
	history, err := h.ds.History(ctx)
	if err != nil {
		h.log.Error("mcp history query", "error", err)
		return nil, mcp.NewToolResultError("query failed: " + err.Error())
	}

	f := search.Filter{
		Query:        req.GetString("query", ""),
		OnlyWithSets: req.GetBool("only_with_sets", false),
	}
	out := make([]models.Session, 0, len(history))
	for _, s := range f.Apply(history) {
		if inRange(s.Date, start, end) {
			out = append(out, s)
		}
	}
	return out, nil
}

// --- Tool definitions ---

var toolSearchSessions = mcp.NewTool("search_sessions",
	mcp.WithDescription("Search logged training sessions. The query matches case-insensitively against title, date, notes, exercise names, variants and notes. Returns full sessions newest first."),
	mcp.WithString("query", mcp.Description("Free-text query (e.g. 'squat', 'leg day'). Empty matches everything.")),
	mcp.WithBoolean("only_with_sets", mcp.Description("Only return sessions with at least one recorded set.")),
	mcp.WithString("start", mcp.Description("Earliest session date (YYYY-MM-DD). Open when omitted.")),
	mcp.WithString("end", mcp.Description("Latest session date (YYYY-MM-DD). Open when omitted.")),
	mcp.WithNumber("limit", mcp.Description("Maximum sessions to return. Defaults to 20.")),
)

var toolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription("Retrieve one training session by id, including every exercise and set."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Session id")),
)

var toolGetTrainingSummary = mcp.NewTool("get_training_summary",
	mcp.WithDescription("Volume (weight x reps x sets) and set-weighted average RPE per month or week, plus overall totals, over the sessions matching the filter."),
	mcp.WithString("granularity", mcp.Description("Bucket size. Defaults to 'month'."), mcp.Enum("month", "week")),
	mcp.WithString("query", mcp.Description("Free-text session filter.")),
	mcp.WithBoolean("only_with_sets", mcp.Description("Only include sessions with at least one recorded set.")),
	mcp.WithString("start", mcp.Description("Earliest session date (YYYY-MM-DD).")),
	mcp.WithString("end", mcp.Description("Latest session date (YYYY-MM-DD).")),
)

var toolListTemplates = mcp.NewTool("list_templates",
	mcp.WithDescription("List saved session templates with their exercises and planned sets."),
)

var toolListImportLogs = mcp.NewTool("list_import_logs",
	mcp.WithDescription("Recent backup imports: source, policy, counts added/updated, warnings and outcome."),
	mcp.WithNumber("limit", mcp.Description("Maximum entries. Defaults to 20.")),
)

var toolExportBackup = mcp.NewTool("export_backup",
	mcp.WithDescription("Build a backup envelope of the stored records, in the same format the import accepts."),
	mcp.WithString("kind", mcp.Description("What to export. Defaults to 'all'."), mcp.Enum("all", "sessions", "templates")),
)

// --- Tool handlers ---

func (h *handlers) searchSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, errResult := h.selectSessions(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	if limit := req.GetInt("limit", 20); limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}

	result, err := mcp.NewToolResultJSON(sessions)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	history, err := h.ds.History(ctx)
	if err != nil {
		h.log.Error("mcp get_session", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	for _, s := range history {
		if s.ID == id {
			result, err := mcp.NewToolResultJSON(s)
			if err != nil {
				return mcp.NewToolResultError("serialization failed"), nil
			}
			return result, nil
		}
	}
	return mcp.NewToolResultError("session not found: " + id), nil
}

func (h *handlers) getTrainingSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := summary.ParseGranularity(req.GetString("granularity", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sessions, errResult := h.selectSessions(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"granularity": g,
		"sessions":    len(sessions),
		"buckets":     summary.Summarize(sessions, g),
		"totals":      summary.Flat(sessions),
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listTemplates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templates, err := h.ds.Templates(ctx)
	if err != nil {
		h.log.Error("mcp list_templates", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(templates)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listImportLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logs, err := h.ds.ImportLogs(ctx, req.GetInt("limit", 20))
	if err != nil {
		h.log.Error("mcp list_import_logs", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(logs)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) exportBackup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := export.ParseKind(req.GetString("kind", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sessions, err := h.ds.History(ctx)
	if err != nil {
		h.log.Error("mcp export_backup", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	templates, err := h.ds.Templates(ctx)
	if err != nil {
		h.log.Error("mcp export_backup", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(export.Build(kind, sessions, templates, h.now()))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
