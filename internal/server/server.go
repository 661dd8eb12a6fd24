// Package server exposes the trelog record set over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/trelog/internal/draft"
	"github.com/claude/trelog/internal/importer"
	"github.com/claude/trelog/internal/storage"
	"github.com/go-chi/chi/v5"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	records  *storage.Records
	importer *importer.Importer
	editor   *draft.Editor
	log      *slog.Logger
	apiKey   string
	identity func(http.Handler) http.Handler
	mcp      http.Handler
	now      func() time.Time
	router   chi.Router
}

// New creates a new Server with all routes configured. An empty apiKey
// leaves the API unauthenticated.
func New(records *storage.Records, imp *importer.Importer, editor *draft.Editor, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		records:  records,
		importer: imp,
		editor:   editor,
		log:      log,
		apiKey:   apiKey,
		identity: DevIdentity,
		now:      time.Now,
	}
	s.routes()
	return s
}

// SetTailscale resolves request identities through the tailnet instead of
// the fixed local user.
func (s *Server) SetTailscale(lc WhoIser) {
	s.identity = TailscaleIdentity(lc, s.log)
	s.routes()
}

// MountMCP serves an MCP endpoint at /mcp behind the same API key as the
// REST routes.
func (s *Server) MountMCP(h http.Handler) {
	s.mcp = h
	s.routes()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(RequestLogging(s.log))
	r.Use(CORS)
	r.Use(s.identity)

	r.Group(func(r chi.Router) {
		if s.apiKey != "" {
			r.Use(APIKeyAuth(s.apiKey))
		}
		if s.mcp != nil {
			r.Handle("/mcp", s.mcp)
		}
		r.Route("/api/v1", s.apiRoutes)
	})
	s.router = r
}

func (s *Server) apiRoutes(r chi.Router) {
	r.Get("/me", s.handleMe)

	r.Get("/sessions", s.handleListSessions)
	r.Get("/sessions/{id}", s.handleGetSession)
	r.Delete("/sessions/{id}", s.handleDeleteSession)
	r.Get("/summary", s.handleSummary)

	r.Get("/templates", s.handleListTemplates)
	r.Delete("/templates/{id}", s.handleDeleteTemplate)

	r.Get("/export", s.handleExport)
	r.Get("/export/csv", s.handleExportCSV)

	r.Post("/import", s.handleImport)
	r.Post("/import/preview", s.handleImportPreview)
	r.Get("/import/{token}", s.handleGetPreview)
	r.Post("/import/{token}/commit", s.handleImportCommit)
	r.Delete("/import/{token}", s.handleImportDiscard)
	r.Get("/import-logs", s.handleImportLogs)

	r.Get("/autobackup", s.handleGetAutoBackup)
	r.Post("/autobackup/restore", s.handleRestoreAutoBackup)

	r.Route("/draft", func(r chi.Router) {
		r.Get("/", s.handleGetDraft)
		r.Put("/", s.handlePutDraft)
		r.Post("/reset", s.handleResetDraft)
		r.Post("/commit", s.handleCommitDraft)
		r.Post("/template", s.handleSaveTemplate)
		r.Post("/apply-template/{id}", s.handleApplyTemplate)
		r.Post("/exercises", s.handleAddExercise)
		r.Put("/exercises/{ex}", s.handleUpdateExercise)
		r.Delete("/exercises/{ex}", s.handleRemoveExercise)
		r.Post("/exercises/{ex}/sets", s.handleAddSet)
		r.Put("/exercises/{ex}/sets/{set}", s.handleUpdateSet)
		r.Delete("/exercises/{ex}/sets/{set}", s.handleRemoveSet)
	})
}
