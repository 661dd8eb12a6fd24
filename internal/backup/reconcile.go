package backup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/claude/trelog/internal/models"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Policy selects how an import is reconciled with existing records.
type Policy string

const (
	// Merge overwrites records sharing an identifier and keeps the rest.
	Merge Policy = "merge"
	// Replace makes the imported collections authoritative, except that a
	// category the import left empty is not cleared.
	Replace Policy = "replace"
)

// ErrUnknownPolicy is returned by ParsePolicy.
var ErrUnknownPolicy = errors.New("unknown reconcile policy")

// ParsePolicy parses "merge" or "replace", case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case Merge, Replace:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Result holds the collections to persist.
type Result struct {
	Sessions  []models.Session
	Templates []models.Template

	SessionsChanged  bool
	TemplatesChanged bool

	// Merge statistics; zero for Replace.
	SessionsAdded    int
	SessionsUpdated  int
	TemplatesAdded   int
	TemplatesUpdated int
}

// Changed reports whether either collection differs from the input.
func (r Result) Changed() bool {
	return r.SessionsChanged || r.TemplatesChanged
}

// Reconcile applies policy to the existing collections and the analyzed
// import. Inputs are never modified; the returned collections are fresh
// copies. Replace with both imported categories empty returns the existing
// collections with Changed() false. An unknown policy behaves like that too.
func Reconcile(sessions []models.Session, templates []models.Template, p Preview, policy Policy) Result {
	res := Result{
		Sessions:  models.CloneSessions(sessions),
		Templates: models.CloneTemplates(templates),
	}

	switch policy {
	case Merge:
		if len(p.sessions) > 0 {
			res.Sessions, res.SessionsAdded, res.SessionsUpdated = mergeByID(sessions, p.sessions,
				func(s models.Session) string { return s.ID }, models.Session.Clone)
			res.SessionsChanged = true
		}
		if len(p.templates) > 0 {
			res.Templates, res.TemplatesAdded, res.TemplatesUpdated = mergeByID(templates, p.templates,
				func(t models.Template) string { return t.ID }, models.Template.Clone)
			res.TemplatesChanged = true
		}
	case Replace:
		if len(p.sessions) > 0 {
			res.Sessions = models.CloneSessions(p.sessions)
			res.SessionsChanged = true
		}
		if len(p.templates) > 0 {
			res.Templates = models.CloneTemplates(p.templates)
			res.TemplatesChanged = true
		}
	}
	return res
}

// mergeByID seeds an ordered map with existing and then overwrites it with
// imported. A key that is set again keeps its original position.
func mergeByID[T any](existing, imported []T, id func(T) string, clone func(T) T) (out []T, added, updated int) {
	m := orderedmap.New[string, T](orderedmap.WithCapacity[string, T](len(existing) + len(imported)))
	for _, v := range existing {
		m.Set(id(v), v)
	}
	for _, v := range imported {
		if _, present := m.Set(id(v), v); present {
			updated++
		} else {
			added++
		}
	}

	out = make([]T, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, clone(pair.Value))
	}
	return out, added, updated
}
