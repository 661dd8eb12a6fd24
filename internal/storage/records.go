package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/claude/trelog/internal/models"
)

// Keys of the persisted collections.
const (
	KeyDraft      = "trelog/session/current"
	KeyHistory    = "trelog/session/history"
	KeyTemplates  = "trelog/templates/v1"
	KeyAutoBackup = "trelog/autoBackup/v1"
)

// Records is the typed view of a Store. Reads return a default on a missing
// key. Read-modify-write operations are serialized so that a single writer
// touches history and templates at a time.
type Records struct {
	store Store

	mu       sync.Mutex
	onChange func()
}

// NewRecords wraps store.
func NewRecords(store Store) *Records {
	return &Records{store: store}
}

// Store returns the underlying store.
func (r *Records) Store() Store { return r.store }

// OnChange registers fn to run after every write to history or templates.
func (r *Records) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

func getJSON[T any](ctx context.Context, s Store, key string, def T) (T, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return def, fmt.Errorf("decoding %s: %w", key, err)
	}
	return v, nil
}

func putJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// Draft returns the stored draft, or def when none is stored.
func (r *Records) Draft(ctx context.Context, def models.Session) (models.Session, error) {
	return getJSON(ctx, r.store, KeyDraft, def)
}

// SaveDraft stores the draft.
func (r *Records) SaveDraft(ctx context.Context, s models.Session) error {
	return putJSON(ctx, r.store, KeyDraft, s)
}

// History returns the saved sessions, newest first as stored.
func (r *Records) History(ctx context.Context) ([]models.Session, error) {
	h, err := getJSON(ctx, r.store, KeyHistory, []models.Session{})
	if h == nil {
		h = []models.Session{}
	}
	return h, err
}

// Templates returns the saved templates.
func (r *Records) Templates(ctx context.Context) ([]models.Template, error) {
	t, err := getJSON(ctx, r.store, KeyTemplates, []models.Template{})
	if t == nil {
		t = []models.Template{}
	}
	return t, err
}

// Update loads history and templates, passes them to fn and stores what fn
// returns. fn reports which collections it changed; unchanged ones are not
// written.
func (r *Records) Update(ctx context.Context, fn func(sessions []models.Session, templates []models.Template) (Change, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.History(ctx)
	if err != nil {
		return err
	}
	templates, err := r.Templates(ctx)
	if err != nil {
		return err
	}
	ch, err := fn(sessions, templates)
	if err != nil {
		return err
	}
	return r.apply(ctx, ch)
}

// Change describes collections to write. A nil slice leaves that collection alone.
type Change struct {
	Sessions  []models.Session
	Templates []models.Template
}

func (r *Records) apply(ctx context.Context, ch Change) error {
	entries := make(map[string][]byte, 2)
	if ch.Sessions != nil {
		b, err := json.Marshal(ch.Sessions)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", KeyHistory, err)
		}
		entries[KeyHistory] = b
	}
	if ch.Templates != nil {
		b, err := json.Marshal(ch.Templates)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", KeyTemplates, err)
		}
		entries[KeyTemplates] = b
	}
	if len(entries) == 0 {
		return nil
	}
	// History and templates are committed together or not at all.
	if err := r.store.PutMany(ctx, entries); err != nil {
		return err
	}
	if r.onChange != nil {
		r.onChange()
	}
	return nil
}

// Snapshot reads history and templates under the writer lock, so the pair
// never straddles a concurrent Update.
func (r *Records) Snapshot(ctx context.Context) ([]models.Session, []models.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.History(ctx)
	if err != nil {
		return nil, nil, err
	}
	templates, err := r.Templates(ctx)
	if err != nil {
		return nil, nil, err
	}
	return sessions, templates, nil
}

// Replace overwrites the given collections.
func (r *Records) Replace(ctx context.Context, ch Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apply(ctx, ch)
}

// PrependSession adds s at the front of history.
func (r *Records) PrependSession(ctx context.Context, s models.Session) error {
	return r.Update(ctx, func(sessions []models.Session, _ []models.Template) (Change, error) {
		return Change{Sessions: append([]models.Session{s}, sessions...)}, nil
	})
}

// DeleteSession removes the session with id and reports whether it existed.
func (r *Records) DeleteSession(ctx context.Context, id string) (bool, error) {
	found := false
	err := r.Update(ctx, func(sessions []models.Session, _ []models.Template) (Change, error) {
		kept := make([]models.Session, 0, len(sessions))
		for _, s := range sessions {
			if s.ID == id {
				found = true
				continue
			}
			kept = append(kept, s)
		}
		if !found {
			return Change{}, nil
		}
		return Change{Sessions: kept}, nil
	})
	return found, err
}

// PrependTemplate adds t at the front of the template list.
func (r *Records) PrependTemplate(ctx context.Context, t models.Template) error {
	return r.Update(ctx, func(_ []models.Session, templates []models.Template) (Change, error) {
		return Change{Templates: append([]models.Template{t}, templates...)}, nil
	})
}

// DeleteTemplate removes the template with id and reports whether it existed.
func (r *Records) DeleteTemplate(ctx context.Context, id string) (bool, error) {
	found := false
	err := r.Update(ctx, func(_ []models.Session, templates []models.Template) (Change, error) {
		kept := make([]models.Template, 0, len(templates))
		for _, t := range templates {
			if t.ID == id {
				found = true
				continue
			}
			kept = append(kept, t)
		}
		if !found {
			return Change{}, nil
		}
		return Change{Templates: kept}, nil
	})
	return found, err
}

// ImportLogs returns the most recent import logs, newest first.
func (r *Records) ImportLogs(ctx context.Context, limit int) ([]ImportLog, error) {
	return r.store.QueryImportLogs(ctx, limit)
}

// AutoBackup returns the raw auto-backup snapshot, or ErrNotFound.
func (r *Records) AutoBackup(ctx context.Context) ([]byte, error) {
	return r.store.Get(ctx, KeyAutoBackup)
}

// SaveAutoBackup stores an auto-backup snapshot. It does not trigger OnChange.
func (r *Records) SaveAutoBackup(ctx context.Context, b models.BackupFile) error {
	return putJSON(ctx, r.store, KeyAutoBackup, b)
}
