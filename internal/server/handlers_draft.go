package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/claude/trelog/internal/draft"
	"github.com/claude/trelog/internal/models"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.editor.Draft())
}

func (s *Server) handlePutDraft(w http.ResponseWriter, r *http.Request) {
	var sess models.Session
	if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if sess.Exercises == nil {
		sess.Exercises = []models.ExerciseBlock{}
	}
	s.editDraft(w, func(d models.Session) (models.Session, error) {
		sess.ID = d.ID
		return sess, nil
	})
}

func (s *Server) handleResetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.editor.Reset()
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleCommitDraft moves the draft into history and starts a new one.
func (s *Server) handleCommitDraft(w http.ResponseWriter, r *http.Request) {
	saved, err := s.editor.Commit(func(sess models.Session) error {
		return s.records.PrependSession(r.Context(), sess)
	})
	if err != nil {
		writeDraftError(w, err)
		return
	}
	s.log.Info("session saved", "id", saved.ID, "date", saved.Date, "exercises", len(saved.Exercises))
	writeJSON(w, http.StatusCreated, saved)
}

type saveTemplateRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req saveTemplateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
			return
		}
	}
	t, err := draft.TemplateFromSession(s.editor.Draft(), req.Name, s.editor.NewID)
	if err != nil {
		writeDraftError(w, err)
		return
	}
	if err := s.records.PrependTemplate(r.Context(), t); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	mode, err := draft.ParseApplyMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	t, found, err := s.findTemplate(r, chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "template not found"})
		return
	}
	s.editDraft(w, func(d models.Session) (models.Session, error) {
		return draft.ApplyTemplate(d, t, mode, s.editor.NewID), nil
	})
}

type addExerciseResponse struct {
	ID    string         `json:"id"`
	Draft models.Session `json:"draft"`
}

func (s *Server) handleAddExercise(w http.ResponseWriter, r *http.Request) {
	var id string
	d, err := s.editor.Update(func(d models.Session) (models.Session, error) {
		var out models.Session
		out, id = draft.AddExercise(d, s.editor.NewID)
		return out, nil
	})
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, addExerciseResponse{ID: id, Draft: d})
}

func (s *Server) handleUpdateExercise(w http.ResponseWriter, r *http.Request) {
	var b models.ExerciseBlock
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	b.ID = chi.URLParam(r, "ex")
	if b.Sets == nil {
		b.Sets = []models.SetEntry{}
	}
	s.editDraft(w, func(d models.Session) (models.Session, error) {
		return draft.UpdateExercise(d, b)
	})
}

func (s *Server) handleRemoveExercise(w http.ResponseWriter, r *http.Request) {
	exID := chi.URLParam(r, "ex")
	s.editDraft(w, func(d models.Session) (models.Session, error) {
		return draft.RemoveExercise(d, exID), nil
	})
}

func (s *Server) handleAddSet(w http.ResponseWriter, r *http.Request) {
	copyLast := true
	if v := r.URL.Query().Get("copyLast"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "copyLast must be a boolean"})
			return
		}
		copyLast = b
	}
	exID := chi.URLParam(r, "ex")
	s.editDraft(w, func(d models.Session) (models.Session, error) {
		return draft.AddSet(d, exID, copyLast, s.editor.NewID)
	})
}

func (s *Server) handleUpdateSet(w http.ResponseWriter, r *http.Request) {
	var st models.SetEntry
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	st.ID = chi.URLParam(r, "set")
	exID := chi.URLParam(r, "ex")
	s.editDraft(w, func(d models.Session) (models.Session, error) {
		return draft.UpdateSet(d, exID, st)
	})
}

func (s *Server) handleRemoveSet(w http.ResponseWriter, r *http.Request) {
	exID, setID := chi.URLParam(r, "ex"), chi.URLParam(r, "set")
	s.editDraft(w, func(d models.Session) (models.Session, error) {
		return draft.RemoveSet(d, exID, setID)
	})
}

// editDraft applies fn through the editor and writes the resulting draft.
func (s *Server) editDraft(w http.ResponseWriter, fn func(models.Session) (models.Session, error)) {
	d, err := s.editor.Update(fn)
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func writeDraftError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, draft.ErrExerciseNotFound), errors.Is(err, draft.ErrSetNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, draft.ErrNothingToSave), errors.Is(err, draft.ErrEmptyTemplate):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, draft.ErrInvalidRPE):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
