package mcp

import (
	"context"

	"github.com/claude/trelog/internal/models"
	"github.com/claude/trelog/internal/storage"
)

// DataSource abstracts the record set for MCP tools. Both *storage.Records
// (local) and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	History(ctx context.Context) ([]models.Session, error)
	Templates(ctx context.Context) ([]models.Template, error)
	ImportLogs(ctx context.Context, limit int) ([]storage.ImportLog, error)
}

// Compile-time check: *storage.Records satisfies DataSource.
var _ DataSource = (*storage.Records)(nil)
