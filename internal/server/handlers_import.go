package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/claude/trelog/internal/autobackup"
	"github.com/claude/trelog/internal/backup"
	"github.com/claude/trelog/internal/export"
	"github.com/claude/trelog/internal/importer"
	"github.com/claude/trelog/internal/models"
	"github.com/claude/trelog/internal/storage"
	"github.com/go-chi/chi/v5"
)

const (
	maxImportBytes = 32 << 20
	defaultSource  = "upload"
)

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	kind, err := export.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sessions, templates, err := s.collections(r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	now := s.now()
	file := export.Build(kind, sessions, templates, now)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", attachment(export.Filename(kind, now)))
	if err := export.WriteJSON(w, file); err != nil {
		s.log.Error("writing export", "kind", kind, "error", err)
	}
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	history, err := s.records.History(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(export.CSVFilename(s.now())))
	if err := export.WriteCSV(w, f.Apply(history)); err != nil {
		s.log.Error("writing csv export", "error", err)
	}
}

// handleImport analyzes and applies a backup in one request.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	policy, err := policyOf(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	stats, err := s.importer.Import(r.Context(), sourceOf(r), data, policy)
	if err != nil {
		writeImportError(w, stats, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type previewResponse struct {
	Token   string         `json:"token"`
	Preview backup.Preview `json:"preview"`
}

// handleImportPreview analyzes a backup and stages it for a later commit.
func (s *Server) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	p, err := importer.Analyze(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	token := s.importer.Stage(sourceOf(r), p)
	writeJSON(w, http.StatusOK, previewResponse{Token: token, Preview: p})
}

func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	p, err := s.importer.Staged(token)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{Token: token, Preview: p})
}

func (s *Server) handleImportCommit(w http.ResponseWriter, r *http.Request) {
	policy, err := policyOf(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	stats, err := s.importer.Commit(r.Context(), chi.URLParam(r, "token"), policy)
	if err != nil {
		writeImportError(w, stats, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleImportDiscard(w http.ResponseWriter, r *http.Request) {
	s.importer.Discard(chi.URLParam(r, "token"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.records.ImportLogs(r.Context(), parseLimit(r, 50))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleGetAutoBackup(w http.ResponseWriter, r *http.Request) {
	raw, err := s.records.AutoBackup(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": autobackup.ErrNoSnapshot.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func (s *Server) handleRestoreAutoBackup(w http.ResponseWriter, r *http.Request) {
	restored, err := autobackup.Restore(r.Context(), s.records)
	if errors.Is(err, autobackup.ErrNoSnapshot) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		s.log.Error("auto-backup restore failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.log.Info("auto-backup restored", "sessions", restored.Sessions, "templates", restored.Templates)
	writeJSON(w, http.StatusOK, restored)
}

func (s *Server) collections(r *http.Request) ([]models.Session, []models.Template, error) {
	sessions, err := s.records.History(r.Context())
	if err != nil {
		return nil, nil, err
	}
	templates, err := s.records.Templates(r.Context())
	if err != nil {
		return nil, nil, err
	}
	return sessions, templates, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		return nil, false
	}
	return data, true
}

// policyOf reads the policy query parameter, defaulting to merge.
func policyOf(r *http.Request) (backup.Policy, error) {
	v := r.URL.Query().Get("policy")
	if v == "" {
		return backup.Merge, nil
	}
	return backup.ParsePolicy(v)
}

func sourceOf(r *http.Request) string {
	if src := r.URL.Query().Get("source"); src != "" {
		return src
	}
	return defaultSource
}

// writeImportError maps importer failures to statuses. A replace with
// nothing to replace still reports the stats it gathered.
func writeImportError(w http.ResponseWriter, stats *importer.Stats, err error) {
	switch {
	case errors.Is(err, importer.ErrDecode), errors.Is(err, backup.ErrUnknownPolicy):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, importer.ErrPreviewNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, importer.ErrNothingToReplace):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "stats": stats})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}
