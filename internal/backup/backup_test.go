package backup

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/claude/trelog/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func decodeRaw(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	return v
}

func session(id, date, title string) models.Session {
	return models.Session{ID: id, Date: date, Title: title, Exercises: []models.ExerciseBlock{}}
}

func template(id, name string) models.Template {
	return models.Template{ID: id, Name: name, Exercises: []models.ExerciseBlock{}}
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, v := range items {
		out[i] = id(v)
	}
	return out
}

func sessionIDs(s []models.Session) []string {
	return ids(s, func(s models.Session) string { return s.ID })
}

func templateIDs(t []models.Template) []string {
	return ids(t, func(t models.Template) string { return t.ID })
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantSessions []string
		wantTmpl     []string
		wantMin      string
		wantMax      string
		wantWarnings []string
	}{
		{
			name: "valid v1",
			raw: `{"__type":"trelog-backup","version":1,"sessions":[
				{"id":"b","date":"2024-03-10","exercises":[]},
				{"id":"a","date":"2024-01-05","exercises":[]}
			],"templates":[{"id":"t","name":"Push","exercises":[]}]}`,
			wantSessions: []string{"b", "a"},
			wantTmpl:     []string{"t"},
			wantMin:      "2024-01-05",
			wantMax:      "2024-03-10",
		},
		{
			name: "malformed sessions dropped",
			raw: `{"version":1,"sessions":[
				{"id":"ok","date":"2024-02-01"},
				{"id":"","date":"2024-02-02"},
				{"id":"nodate"},
				{"id":5,"date":"2024-02-03"}
			]}`,
			wantSessions: []string{"ok"},
			wantMin:      "2024-02-01",
			wantMax:      "2024-02-01",
			wantWarnings: []string{WarnSessionsSkipped},
		},
		{
			name:         "malformed templates dropped",
			raw:          `{"version":1,"sessions":[],"templates":[{"id":"t1","name":""},{"id":"t2","name":"Legs"}]}`,
			wantTmpl:     []string{"t2"},
			wantWarnings: []string{WarnTemplatesSkipped},
		},
		{
			name:         "both dropped",
			raw:          `{"version":1,"sessions":[{"id":"x"}],"templates":[{"name":"y"}]}`,
			wantWarnings: []string{WarnSessionsSkipped, WarnTemplatesSkipped},
		},
		{
			name:         "v0 gets ids and is kept",
			raw:          `{"sessions":[{"date":"2023-12-31"}],"templates":[{"name":"Pull"}]}`,
			wantSessions: nil, // generated ids, checked by count below
			wantMin:      "2023-12-31",
			wantMax:      "2023-12-31",
		},
		{
			name: "not an object",
			raw:  `[1,2,3]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Analyze(decodeRaw(t, tt.raw))

			if tt.wantSessions != nil {
				if diff := cmp.Diff(tt.wantSessions, sessionIDs(p.Sessions())); diff != "" {
					t.Errorf("session ids (-want +got):\n%s", diff)
				}
			}
			if tt.wantTmpl != nil {
				if diff := cmp.Diff(tt.wantTmpl, templateIDs(p.Templates())); diff != "" {
					t.Errorf("template ids (-want +got):\n%s", diff)
				}
			}
			if c := p.Counts(); c.Sessions != len(p.Sessions()) || c.Templates != len(p.Templates()) {
				t.Errorf("counts %+v disagree with records", c)
			}

			r := p.DateRange()
			if got := deref(r.Min); got != tt.wantMin {
				t.Errorf("min = %q, want %q", got, tt.wantMin)
			}
			if got := deref(r.Max); got != tt.wantMax {
				t.Errorf("max = %q, want %q", got, tt.wantMax)
			}
			if diff := cmp.Diff(tt.wantWarnings, p.Warnings(), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("warnings (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAnalyzeV0Counts(t *testing.T) {
	p := Analyze(decodeRaw(t, `{"sessions":[{"date":"2023-12-31"}],"templates":[{"name":"Pull"}]}`))
	if c := p.Counts(); c.Sessions != 1 || c.Templates != 1 {
		t.Errorf("counts = %+v, want 1/1", c)
	}
	if p.DeclaredVersion() != 0 {
		t.Errorf("declared = %d, want 0", p.DeclaredVersion())
	}
}

func TestPreviewImmutable(t *testing.T) {
	p := Analyze(decodeRaw(t, `{"version":1,"sessions":[{"id":"a","date":"2024-01-01","exercises":[{"id":"e","name":"Row","sets":[]}]}]}`))

	got := p.Sessions()
	got[0].Title = "changed"
	got[0].Exercises[0].Name = "changed"
	*p.DateRange().Min = "1999-01-01"

	again := p.Sessions()
	if again[0].Title != "" || again[0].Exercises[0].Name != "Row" {
		t.Errorf("preview records were mutated through an accessor: %+v", again[0])
	}
	if *p.DateRange().Min != "2024-01-01" {
		t.Errorf("preview date range was mutated")
	}
}

func TestPreviewMarshalJSON(t *testing.T) {
	p := Analyze(decodeRaw(t, `{"version":1,"sessions":[]}`))
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"counts":{"sessions":0,"templates":0},"dateRange":{"min":null,"max":null},"warnings":[],"declaredVersion":1}`
	if string(data) != want {
		t.Errorf("got  %s\nwant %s", data, want)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func previewOf(t *testing.T, sessions []models.Session, templates []models.Template) Preview {
	t.Helper()
	data, err := json.Marshal(models.BackupFile{Type: models.BackupType, Version: 1, Sessions: sessions, Templates: templates})
	if err != nil {
		t.Fatal(err)
	}
	return Analyze(decodeRaw(t, string(data)))
}

func TestReconcileMergeImportedWins(t *testing.T) {
	existing := []models.Session{session("a", "2024-01-01", "old"), session("b", "2024-01-02", "keep")}
	p := previewOf(t, []models.Session{session("c", "2024-01-03", "new"), session("a", "2024-01-01", "new")}, nil)

	res := Reconcile(existing, nil, p, Merge)

	if diff := cmp.Diff([]string{"a", "b", "c"}, sessionIDs(res.Sessions)); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if res.Sessions[0].Title != "new" {
		t.Errorf("session a title = %q, want imported value", res.Sessions[0].Title)
	}
	if res.Sessions[1].Title != "keep" {
		t.Errorf("session b title = %q, want untouched", res.Sessions[1].Title)
	}
	if res.SessionsAdded != 1 || res.SessionsUpdated != 1 {
		t.Errorf("added/updated = %d/%d, want 1/1", res.SessionsAdded, res.SessionsUpdated)
	}
	if !res.SessionsChanged || res.TemplatesChanged {
		t.Errorf("changed flags = %v/%v", res.SessionsChanged, res.TemplatesChanged)
	}
	if existing[0].Title != "old" {
		t.Error("existing collection was mutated")
	}
}

func TestReconcileMergeTemplates(t *testing.T) {
	existing := []models.Template{template("t1", "Push")}

	t.Run("no imported templates leaves existing", func(t *testing.T) {
		p := previewOf(t, []models.Session{session("a", "2024-01-01", "")}, []models.Template{})
		res := Reconcile(nil, existing, p, Merge)
		if diff := cmp.Diff(existing, res.Templates, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("templates (-want +got):\n%s", diff)
		}
		if res.TemplatesChanged {
			t.Error("templates reported changed")
		}
	})

	t.Run("imported templates merged", func(t *testing.T) {
		p := previewOf(t, nil, []models.Template{template("t2", "Pull"), template("t1", "Push v2")})
		res := Reconcile(nil, existing, p, Merge)
		if diff := cmp.Diff([]string{"t1", "t2"}, templateIDs(res.Templates)); diff != "" {
			t.Errorf("order (-want +got):\n%s", diff)
		}
		if res.Templates[0].Name != "Push v2" {
			t.Errorf("t1 name = %q", res.Templates[0].Name)
		}
		if res.SessionsChanged {
			t.Error("sessions reported changed")
		}
	})
}

func TestReconcileReplace(t *testing.T) {
	existingS := []models.Session{session("a", "2024-01-01", "")}
	existingT := []models.Template{template("T", "Full body")}

	tests := []struct {
		name          string
		sessions      []models.Session
		templates     []models.Template
		wantSessions  []string
		wantTemplates []string
		wantChanged   bool
	}{
		{
			name:          "both categories",
			sessions:      []models.Session{session("x", "2024-02-01", "")},
			templates:     []models.Template{template("Y", "Upper")},
			wantSessions:  []string{"x"},
			wantTemplates: []string{"Y"},
			wantChanged:   true,
		},
		{
			name:          "empty templates keep existing",
			sessions:      []models.Session{session("x", "2024-02-01", "")},
			templates:     []models.Template{},
			wantSessions:  []string{"x"},
			wantTemplates: []string{"T"},
			wantChanged:   true,
		},
		{
			name:          "empty sessions keep existing",
			templates:     []models.Template{template("Y", "Upper")},
			wantSessions:  []string{"a"},
			wantTemplates: []string{"Y"},
			wantChanged:   true,
		},
		{
			name:          "both empty is a no-op",
			wantSessions:  []string{"a"},
			wantTemplates: []string{"T"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Reconcile(existingS, existingT, previewOf(t, tt.sessions, tt.templates), Replace)
			if diff := cmp.Diff(tt.wantSessions, sessionIDs(res.Sessions)); diff != "" {
				t.Errorf("sessions (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantTemplates, templateIDs(res.Templates)); diff != "" {
				t.Errorf("templates (-want +got):\n%s", diff)
			}
			if res.Changed() != tt.wantChanged {
				t.Errorf("Changed() = %v, want %v", res.Changed(), tt.wantChanged)
			}
		})
	}
}

func TestReconcileResultIndependent(t *testing.T) {
	p := previewOf(t, []models.Session{{ID: "a", Date: "2024-01-01", Exercises: []models.ExerciseBlock{{ID: "e", Name: "Squat"}}}}, nil)
	res := Reconcile(nil, nil, p, Replace)
	res.Sessions[0].Exercises[0].Name = "changed"
	if got := p.Sessions()[0].Exercises[0].Name; got != "Squat" {
		t.Errorf("preview mutated through result: %q", got)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"merge", Merge, false},
		{"REPLACE", Replace, false},
		{" merge ", Merge, false},
		{"wipe", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownPolicy) {
				t.Errorf("ParsePolicy(%q) err = %v, want ErrUnknownPolicy", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestNewBackup(t *testing.T) {
	now := time.Date(2024, 5, 4, 10, 30, 0, 0, time.UTC)
	sessions := []models.Session{
		{ID: "a", Date: "2024-05-01", Exercises: []models.ExerciseBlock{{ID: "e", Sets: []models.SetEntry{
			{ID: "s", SetNumber: 1, WeightKg: models.N(100), Reps: models.N(5), SetsCount: models.N(3)},
		}}}},
		session("b", "2024-04-01", ""),
		session("c", "", ""),
	}
	b := NewBackup(sessions, []models.Template{template("t", "Push")}, now)

	if b.Type != models.BackupType || b.Version != 1 || b.ExportedAt != "2024-05-04T10:30:00.000Z" {
		t.Errorf("envelope = %s %d %s", b.Type, b.Version, b.ExportedAt)
	}
	if b.Meta == nil {
		t.Fatal("meta missing")
	}
	if b.Meta.AppName != AppName || b.Meta.Counts != (models.Counts{Sessions: 3, Templates: 1}) {
		t.Errorf("meta = %+v", b.Meta)
	}
	if b.Meta.Stats.TotalVolume != 1500 {
		t.Errorf("total volume = %v, want 1500", b.Meta.Stats.TotalVolume)
	}
	if deref(b.Meta.Stats.DateRange.Min) != "2024-04-01" || deref(b.Meta.Stats.DateRange.Max) != "2024-05-01" {
		t.Errorf("date range = %s..%s", deref(b.Meta.Stats.DateRange.Min), deref(b.Meta.Stats.DateRange.Max))
	}
}

func TestPartialEnvelopes(t *testing.T) {
	now := time.Unix(0, 0)

	so, err := json.Marshal(SessionsOnly([]models.Session{session("a", "2024-01-01", "")}, now))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(so, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["templates"]; ok {
		t.Error("sessions-only export contains templates")
	}
	if _, ok := m["meta"]; ok {
		t.Error("sessions-only export contains meta")
	}

	to := TemplatesOnly([]models.Template{template("t", "Push")}, now)
	if to.Sessions == nil || len(to.Sessions) != 0 {
		t.Errorf("templates-only sessions = %#v, want empty non-nil", to.Sessions)
	}

	ab := NewAutoBackup(nil, nil, now)
	if ab.Type != models.AutoBackupType {
		t.Errorf("auto-backup type = %q", ab.Type)
	}
}

// TestRoundTripThroughImport verifies that an exported backup imports back
// unchanged.
func TestRoundTripThroughImport(t *testing.T) {
	sessions := []models.Session{
		{ID: "a", Date: "2024-05-01", Title: "Upper", Exercises: []models.ExerciseBlock{{ID: "e", Name: "Bench", Sets: []models.SetEntry{
			{ID: "s1", SetNumber: 1, WeightKg: models.N(80), Reps: models.N(8), RPE: models.N(7.5), SetsCount: models.N(1)},
		}}}},
	}
	templates := []models.Template{template("t", "Push")}

	data, err := json.Marshal(NewBackup(sessions, templates, time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	p := Analyze(decodeRaw(t, string(data)))
	if diff := cmp.Diff(sessions, p.Sessions(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("sessions (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(templates, p.Templates(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("templates (-want +got):\n%s", diff)
	}
	if len(p.Warnings()) != 0 {
		t.Errorf("warnings = %v", p.Warnings())
	}
}
