// Package migrate normalizes decoded backup documents of any schema version
// into current-version records.
//
// Migration runs on the generic decoded JSON value, one Step at a time, until
// no step starts at the document's version. The result is then decoded into
// typed records leniently: wrongly typed fields become empty rather than
// failing. Run is total and never mutates its input.
package migrate

import (
	"math"

	"github.com/claude/trelog/internal/models"
	"github.com/google/uuid"
)

// CurrentVersion is the schema version every Result is expressed in.
const CurrentVersion = models.SchemaVersion

// Step rewrites a document from schema version From to To. Apply must build
// new maps rather than modify doc.
type Step struct {
	From  int
	To    int
	Apply func(doc map[string]any, newID func() string) map[string]any
}

// Steps is the default migration chain. New schema versions append a step.
var Steps = []Step{
	{From: 0, To: 1, Apply: v0ToV1},
}

// Result holds migrated records.
type Result struct {
	Sessions  []models.Session
	Templates []models.Template
	// Declared is the version the input claimed; Version is always CurrentVersion.
	Declared int
	Version  int
}

// Migrator applies a chain of steps.
type Migrator struct {
	Steps []Step
	NewID func() string
}

// New returns a Migrator with the default chain and random UUID identifiers.
func New() *Migrator {
	return &Migrator{Steps: Steps, NewID: uuid.NewString}
}

// Migrate runs the default chain using the document's own version tag.
func Migrate(raw any) Result {
	return New().Run(raw, DeclaredVersion(raw))
}

// DeclaredVersion returns the document's "version" tag, or 0 when absent or
// not a non-negative integer.
func DeclaredVersion(raw any) int {
	v, ok := asMap(raw)["version"].(float64)
	if !ok || v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0
	}
	return int(v)
}

// Run migrates raw from the declared version. Versions with no matching step,
// including versions newer than CurrentVersion, are decoded as-is.
func (m *Migrator) Run(raw any, declared int) Result {
	doc := asMap(raw)
	version := declared
	for range len(m.Steps) {
		step, ok := m.stepFrom(version)
		if !ok || step.To <= step.From {
			break
		}
		doc = step.Apply(doc, m.NewID)
		version = step.To
	}

	return Result{
		Sessions:  decodeSessions(doc["sessions"]),
		Templates: decodeTemplates(doc["templates"]),
		Declared:  declared,
		Version:   CurrentVersion,
	}
}

func (m *Migrator) stepFrom(version int) (Step, bool) {
	for _, s := range m.Steps {
		if s.From == version {
			return s, true
		}
	}
	return Step{}, false
}
