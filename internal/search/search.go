// Package search filters sessions by free text and set presence.
package search

import (
	"strings"

	"github.com/claude/trelog/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// normalize lower-cases s with language-neutral rules. Case folding is not
// used: it would make "strasse" match "Straße". A Caser is stateful, so one
// is made per call.
func normalize(s string) string {
	return cases.Lower(language.Und).String(s)
}

// MatchesSession reports whether query occurs, case-insensitively, in the
// session's title, notes, date or any exercise's name, variant or note, or in
// any set note. An empty or blank query matches everything.
func MatchesSession(s models.Session, query string) bool {
	q := normalize(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return matchesSession(s, q)
}

// MatchesExercise reports whether query occurs in the exercise's name,
// variant, note or any of its set notes.
func MatchesExercise(ex models.ExerciseBlock, query string) bool {
	q := normalize(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return matchesExercise(ex, q)
}

func matchesSession(s models.Session, q string) bool {
	parts := []string{s.Title, s.Notes, s.Date}
	for _, ex := range s.Exercises {
		parts = append(parts, ex.Name, ex.Variant, ex.Note)
	}
	if strings.Contains(normalize(strings.Join(parts, " ")), q) {
		return true
	}
	for _, ex := range s.Exercises {
		if matchesExercise(ex, q) {
			return true
		}
	}
	return false
}

func matchesExercise(ex models.ExerciseBlock, q string) bool {
	parts := []string{ex.Name, ex.Variant, ex.Note}
	for _, st := range ex.Sets {
		parts = append(parts, st.Note)
	}
	return strings.Contains(normalize(strings.Join(parts, " ")), q)
}

// HasSets reports whether any exercise of s has at least one set.
func HasSets(s models.Session) bool {
	for _, ex := range s.Exercises {
		if len(ex.Sets) > 0 {
			return true
		}
	}
	return false
}

// Filter is the listing filter state.
type Filter struct {
	Query        string
	OnlyWithSets bool
}

// Match applies both predicates.
func (f Filter) Match(s models.Session) bool {
	if f.OnlyWithSets && !HasSets(s) {
		return false
	}
	return MatchesSession(s, f.Query)
}

// Apply returns the matching sessions in input order. The result is a new
// slice sharing no state with sessions.
func (f Filter) Apply(sessions []models.Session) []models.Session {
	q := normalize(strings.TrimSpace(f.Query))
	out := make([]models.Session, 0, len(sessions))
	for _, s := range sessions {
		if f.OnlyWithSets && !HasSets(s) {
			continue
		}
		if q != "" && !matchesSession(s, q) {
			continue
		}
		out = append(out, s.Clone())
	}
	return out
}
