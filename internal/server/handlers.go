package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/claude/trelog/internal/models"
	"github.com/claude/trelog/internal/search"
	"github.com/claude/trelog/internal/summary"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
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
	sessions := f.Apply(history)

	group := r.URL.Query().Get("group")
	if group == "" {
		writeJSON(w, http.StatusOK, sessions)
		return
	}
	g, err := summary.ParseGranularity(group)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary.GroupSessions(sessions, g))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history, err := s.records.History(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	for _, sess := range history {
		if sess.ID == id {
			writeJSON(w, http.StatusOK, sess)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	found, err := s.records.DeleteSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type summaryResponse struct {
	Granularity summary.Granularity `json:"granularity"`
	Buckets     []summary.Bucket    `json:"buckets"`
	Totals      summary.Totals      `json:"totals"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	g, err := summary.ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
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
	sessions := f.Apply(history)
	writeJSON(w, http.StatusOK, summaryResponse{
		Granularity: g,
		Buckets:     summary.Summarize(sessions, g),
		Totals:      summary.Flat(sessions),
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.records.Templates(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	found, err := s.records.DeleteTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "template not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) findTemplate(r *http.Request, id string) (models.Template, bool, error) {
	templates, err := s.records.Templates(r.Context())
	if err != nil {
		return models.Template{}, false, err
	}
	for _, t := range templates {
		if t.ID == id {
			return t, true, nil
		}
	}
	return models.Template{}, false, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

var errBadBool = errors.New("onlyWithSets must be a boolean")

// parseFilter reads the q and onlyWithSets query parameters.
func parseFilter(r *http.Request) (search.Filter, error) {
	q := r.URL.Query()
	f := search.Filter{Query: q.Get("q")}
	if v := q.Get("onlyWithSets"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errBadBool
		}
		f.OnlyWithSets = b
	}
	return f, nil
}

func parseLimit(r *http.Request, def int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}
