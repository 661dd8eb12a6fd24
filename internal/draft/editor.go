package draft

import (
	"sync"
	"time"

	"github.com/claude/trelog/internal/models"
)

// Editor owns the current draft. Edits go through Update, which hands the
// edit function a copy and installs its result; readers only ever see copies.
type Editor struct {
	mu       sync.Mutex
	draft    models.Session
	newID    IDFunc
	now      func() time.Time
	onChange func(models.Session) error
}

// NewEditor returns an Editor holding initial. onChange, if non-nil, is
// called with every new draft value; a failing onChange rejects the edit.
func NewEditor(initial models.Session, newID IDFunc, now func() time.Time, onChange func(models.Session) error) *Editor {
	return &Editor{
		draft:    initial.Clone(),
		newID:    newID,
		now:      now,
		onChange: onChange,
	}
}

// Draft returns a copy of the current draft.
func (e *Editor) Draft() models.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft.Clone()
}

// NewID generates an identifier with the editor's generator.
func (e *Editor) NewID() string {
	return e.newID()
}

// Set replaces the draft.
func (e *Editor) Set(s models.Session) error {
	_, err := e.Update(func(models.Session) (models.Session, error) { return s, nil })
	return err
}

// Update applies fn to a copy of the draft and installs the result.
func (e *Editor) Update(fn func(models.Session) (models.Session, error)) (models.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := fn(e.draft.Clone())
	if err != nil {
		return e.draft.Clone(), err
	}
	if err := e.install(next); err != nil {
		return e.draft.Clone(), err
	}
	return next.Clone(), nil
}

// Commit finalizes the draft and resets it to a new empty one. The caller
// stores the returned session; if store fails the draft is kept.
func (e *Editor) Commit(store func(models.Session) error) (models.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	saved, err := Finalize(e.draft)
	if err != nil {
		return models.Session{}, err
	}
	if err := store(saved); err != nil {
		return models.Session{}, err
	}
	if err := e.install(New(e.now(), e.newID)); err != nil {
		return saved, err
	}
	return saved, nil
}

// Reset discards the draft.
func (e *Editor) Reset() (models.Session, error) {
	return e.Update(func(models.Session) (models.Session, error) {
		return New(e.now(), e.newID), nil
	})
}

func (e *Editor) install(s models.Session) error {
	if e.onChange != nil {
		if err := e.onChange(s.Clone()); err != nil {
			return err
		}
	}
	e.draft = s.Clone()
	return nil
}
