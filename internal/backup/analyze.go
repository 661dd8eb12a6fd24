// Package backup analyzes imported backups and reconciles them with the
// persisted record set.
package backup

import (
	"encoding/json"
	"slices"

	"github.com/claude/trelog/internal/migrate"
	"github.com/claude/trelog/internal/models"
)

// Warnings emitted when whole records are rejected by the structural filter.
const (
	WarnSessionsSkipped  = "some sessions were malformed and will be skipped"
	WarnTemplatesSkipped = "some templates were malformed and will be skipped"
)

// Preview is the immutable result of analyzing an import. It carries the kept
// records so that Reconcile can consume it without re-parsing. Accessors
// return copies.
type Preview struct {
	sessions  []models.Session
	templates []models.Template
	counts    models.Counts
	dateRange models.DateRange
	warnings  []string
	declared  int
}

// Analyze migrates raw with the default chain and filters out records missing
// their identity fields.
func Analyze(raw any) Preview {
	return AnalyzeWith(migrate.New(), raw)
}

// AnalyzeWith is Analyze with an explicit Migrator.
func AnalyzeWith(m *migrate.Migrator, raw any) Preview {
	res := m.Run(raw, migrate.DeclaredVersion(raw))

	sessions := make([]models.Session, 0, len(res.Sessions))
	for _, s := range res.Sessions {
		if s.ID != "" && s.Date != "" {
			sessions = append(sessions, s)
		}
	}
	templates := make([]models.Template, 0, len(res.Templates))
	for _, t := range res.Templates {
		if t.ID != "" && t.Name != "" {
			templates = append(templates, t)
		}
	}

	var warnings []string
	if len(sessions) != len(res.Sessions) {
		warnings = append(warnings, WarnSessionsSkipped)
	}
	if len(templates) != len(res.Templates) {
		warnings = append(warnings, WarnTemplatesSkipped)
	}

	return Preview{
		sessions:  sessions,
		templates: templates,
		counts:    models.Counts{Sessions: len(sessions), Templates: len(templates)},
		dateRange: DateRangeOf(sessions),
		warnings:  warnings,
		declared:  res.Declared,
	}
}

// DateRangeOf returns the lexicographic min and max of the non-empty session
// dates. ISO dates sort chronologically as strings.
func DateRangeOf(sessions []models.Session) models.DateRange {
	dates := make([]string, 0, len(sessions))
	for _, s := range sessions {
		if s.Date != "" {
			dates = append(dates, s.Date)
		}
	}
	if len(dates) == 0 {
		return models.DateRange{}
	}
	slices.Sort(dates)
	lo, hi := dates[0], dates[len(dates)-1]
	return models.DateRange{Min: &lo, Max: &hi}
}

func (p Preview) Sessions() []models.Session   { return models.CloneSessions(p.sessions) }
func (p Preview) Templates() []models.Template { return models.CloneTemplates(p.templates) }
func (p Preview) Counts() models.Counts        { return p.counts }
func (p Preview) Warnings() []string           { return slices.Clone(p.warnings) }

// DateRange returns the kept sessions' date range; both ends are nil when no
// dated session survived.
func (p Preview) DateRange() models.DateRange {
	var r models.DateRange
	if p.dateRange.Min != nil {
		lo := *p.dateRange.Min
		r.Min = &lo
	}
	if p.dateRange.Max != nil {
		hi := *p.dateRange.Max
		r.Max = &hi
	}
	return r
}

// DeclaredVersion is the schema version the input claimed before migration.
func (p Preview) DeclaredVersion() int { return p.declared }

// Empty reports whether nothing survived analysis.
func (p Preview) Empty() bool {
	return len(p.sessions) == 0 && len(p.templates) == 0
}

type previewJSON struct {
	Counts          models.Counts    `json:"counts"`
	DateRange       models.DateRange `json:"dateRange"`
	Warnings        []string         `json:"warnings"`
	DeclaredVersion int              `json:"declaredVersion"`
}

// MarshalJSON reports the summary shown to the user before committing. The
// records themselves are not included.
func (p Preview) MarshalJSON() ([]byte, error) {
	w := p.warnings
	if w == nil {
		w = []string{}
	}
	return json.Marshal(previewJSON{
		Counts:          p.counts,
		DateRange:       p.dateRange,
		Warnings:        w,
		DeclaredVersion: p.declared,
	})
}
