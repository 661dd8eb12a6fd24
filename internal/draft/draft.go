// Package draft edits the in-progress session. Every operation takes a
// session value and returns a new one; nothing is modified in place.
package draft

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/claude/trelog/internal/models"
)

var (
	ErrNothingToSave    = errors.New("draft has nothing to save")
	ErrEmptyTemplate    = errors.New("draft has nothing to save as a template")
	ErrExerciseNotFound = errors.New("exercise not found")
	ErrSetNotFound      = errors.New("set not found")
	ErrUnknownMode      = errors.New("unknown apply mode")
	ErrInvalidRPE       = errors.New("rpe is not on the 6-10 half-point scale")
)

const (
	DefaultTitle        = "Untitled session"
	DefaultTemplateName = "Untitled template"
	DefaultBodyweightKg = 85
)

// IDFunc generates record identifiers.
type IDFunc func() string

// New returns an empty draft dated now's calendar day.
func New(now time.Time, newID IDFunc) models.Session {
	return models.Session{
		ID:           newID(),
		Date:         now.Format(time.DateOnly),
		BodyweightKg: models.N(DefaultBodyweightKg),
		Exercises:    []models.ExerciseBlock{},
	}
}

// AddExercise appends an empty exercise and returns its id.
func AddExercise(s models.Session, newID IDFunc) (models.Session, string) {
	out := s.Clone()
	b := models.ExerciseBlock{ID: newID(), Sets: []models.SetEntry{}}
	out.Exercises = append(out.Exercises, b)
	return out, b.ID
}

// RemoveExercise drops the exercise with id exID. Unknown ids are ignored.
func RemoveExercise(s models.Session, exID string) models.Session {
	out := s
	out.Exercises = make([]models.ExerciseBlock, 0, len(s.Exercises))
	for _, b := range s.Exercises {
		if b.ID != exID {
			out.Exercises = append(out.Exercises, b.Clone())
		}
	}
	return out
}

// UpdateExercise replaces the exercise sharing b's id. Sets are renumbered.
func UpdateExercise(s models.Session, b models.ExerciseBlock) (models.Session, error) {
	return withExercise(s, b.ID, func(models.ExerciseBlock) models.ExerciseBlock {
		c := b.Clone()
		renumber(c.Sets)
		return c
	})
}

// AddSet appends a set to exercise exID. With copyLast the previous set's
// values are copied under a fresh id; otherwise the set is blank.
func AddSet(s models.Session, exID string, copyLast bool, newID IDFunc) (models.Session, error) {
	return withExercise(s, exID, func(b models.ExerciseBlock) models.ExerciseBlock {
		next := models.SetEntry{}
		if n := len(b.Sets); copyLast && n > 0 {
			next = b.Sets[n-1]
		}
		next.ID = newID()
		next.SetNumber = len(b.Sets) + 1
		b.Sets = append(b.Sets, next)
		return b
	})
}

// UpdateSet replaces the set sharing st's id within exercise exID. The set
// keeps its position number. A present RPE must be on models.RPEScale.
func UpdateSet(s models.Session, exID string, st models.SetEntry) (models.Session, error) {
	if st.RPE.Valid && !models.ValidRPE(st.RPE.Value) {
		return s, fmt.Errorf("%w: %v", ErrInvalidRPE, st.RPE.Value)
	}
	found := false
	out, err := withExercise(s, exID, func(b models.ExerciseBlock) models.ExerciseBlock {
		for i := range b.Sets {
			if b.Sets[i].ID == st.ID {
				st.SetNumber = b.Sets[i].SetNumber
				b.Sets[i] = st
				found = true
			}
		}
		return b
	})
	if err != nil {
		return s, err
	}
	if !found {
		return s, ErrSetNotFound
	}
	return out, nil
}

// RemoveSet drops a set and renumbers the remaining sets 1..N.
func RemoveSet(s models.Session, exID, setID string) (models.Session, error) {
	return withExercise(s, exID, func(b models.ExerciseBlock) models.ExerciseBlock {
		sets := make([]models.SetEntry, 0, len(b.Sets))
		for _, st := range b.Sets {
			if st.ID != setID {
				sets = append(sets, st)
			}
		}
		renumber(sets)
		b.Sets = sets
		return b
	})
}

func withExercise(s models.Session, exID string, fn func(models.ExerciseBlock) models.ExerciseBlock) (models.Session, error) {
	out := s.Clone()
	for i, b := range out.Exercises {
		if b.ID == exID {
			out.Exercises[i] = fn(b)
			return out, nil
		}
	}
	return s, ErrExerciseNotFound
}

func renumber(sets []models.SetEntry) {
	for i := range sets {
		sets[i].SetNumber = i + 1
	}
}

// CloneBlock copies b under fresh identifiers with sets numbered from 1.
func CloneBlock(b models.ExerciseBlock, newID IDFunc) models.ExerciseBlock {
	c := b.Clone()
	c.ID = newID()
	for i := range c.Sets {
		c.Sets[i].ID = newID()
		c.Sets[i].SetNumber = i + 1
	}
	return c
}

// ApplyMode selects how a template is applied to the draft.
type ApplyMode string

const (
	// ApplyReplace swaps the exercise list and fills an empty title or notes
	// from the template.
	ApplyReplace ApplyMode = "replace"
	// ApplyAppend adds the template's exercises after the existing ones.
	ApplyAppend ApplyMode = "append"
)

// ParseApplyMode parses "replace" or "append". The empty string means
// ApplyReplace.
func ParseApplyMode(s string) (ApplyMode, error) {
	switch m := ApplyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ApplyReplace, ApplyAppend:
		return m, nil
	case "":
		return ApplyReplace, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// ApplyTemplate clones t's exercises into the draft.
func ApplyTemplate(s models.Session, t models.Template, mode ApplyMode, newID IDFunc) models.Session {
	out := s.Clone()
	cloned := make([]models.ExerciseBlock, 0, len(t.Exercises))
	for _, b := range t.Exercises {
		cloned = append(cloned, CloneBlock(b, newID))
	}

	if mode == ApplyAppend {
		out.Exercises = append(out.Exercises, cloned...)
		return out
	}
	if blank(out.Title) {
		out.Title = t.Name
	}
	if blank(out.Notes) {
		out.Notes = t.Notes
	}
	out.Exercises = cloned
	return out
}

// TemplateFromSession builds a template from the draft. The name falls back
// to the draft's title and then to DefaultTemplateName.
func TemplateFromSession(s models.Session, name string, newID IDFunc) (models.Template, error) {
	if blank(s.Notes) && blank(s.Title) && len(s.Exercises) == 0 {
		return models.Template{}, ErrEmptyTemplate
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(s.Title)
	}
	if name == "" {
		name = DefaultTemplateName
	}

	t := models.Template{
		ID:        newID(),
		Name:      name,
		Notes:     s.Notes,
		Exercises: make([]models.ExerciseBlock, 0, len(s.Exercises)),
	}
	for _, b := range s.Exercises {
		t.Exercises = append(t.Exercises, CloneBlock(b, newID))
	}
	return t, nil
}

// CanSave reports whether the draft has any meaningful content: a numeric
// weight or reps, a title or notes, or an exercise with text or sets.
func CanSave(s models.Session) bool {
	if !blank(s.Title) || !blank(s.Notes) {
		return true
	}
	for _, b := range s.Exercises {
		if !blank(b.Name) || !blank(b.Variant) || !blank(b.Note) || len(b.Sets) > 0 {
			return true
		}
	}
	return false
}

// Finalize returns the session to store in history, with an empty title
// replaced by DefaultTitle.
func Finalize(s models.Session) (models.Session, error) {
	if !CanSave(s) {
		return s, ErrNothingToSave
	}
	out := s.Clone()
	out.Title = strings.TrimSpace(out.Title)
	if out.Title == "" {
		out.Title = DefaultTitle
	}
	return out, nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
