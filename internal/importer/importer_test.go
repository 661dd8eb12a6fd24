package importer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/claude/trelog/internal/backup"
	"github.com/claude/trelog/internal/models"
	"github.com/claude/trelog/internal/storage"
)

func newTestImporter(t *testing.T, dryRun bool) (*Importer, *storage.Records) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := storage.Open(context.Background(), storage.DriverSQLite, filepath.Join(t.TempDir(), "trelog.db"), log)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	r := storage.NewRecords(s)
	return New(r, log, dryRun), r
}

const v1Backup = `{
	"__type": "trelog-backup",
	"version": 1,
	"exportedAt": "2024-05-04T00:00:00.000Z",
	"sessions": [
		{"id": "a", "date": "2024-05-01", "title": "imported", "exercises": []},
		{"id": "b", "date": "2024-05-02", "exercises": []},
		{"id": "", "date": "2024-05-03", "exercises": []}
	],
	"templates": [{"id": "t", "name": "Push", "exercises": []}]
}`

func TestDecode(t *testing.T) {
	for _, in := range []string{"", "   ", "{", "not json", `{"a":}`} {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrDecode) {
			t.Errorf("Decode(%q) err = %v, want ErrDecode", in, err)
		}
	}
	if _, err := Decode([]byte(`[]`)); err != nil {
		t.Errorf("Decode([]) err = %v", err)
	}
}

func TestImportMerge(t *testing.T) {
	ctx := context.Background()
	imp, r := newTestImporter(t, false)

	if err := r.PrependSession(ctx, models.Session{ID: "a", Date: "2024-05-01", Title: "local"}); err != nil {
		t.Fatal(err)
	}
	if err := r.PrependSession(ctx, models.Session{ID: "z", Date: "2024-04-01"}); err != nil {
		t.Fatal(err)
	}

	stats, err := imp.Import(ctx, "backup.json", []byte(v1Backup), backup.Merge)
	if err != nil {
		t.Fatal(err)
	}
	if stats.SessionsReceived != 2 || stats.SessionsAdded != 1 || stats.SessionsUpdated != 1 || stats.TemplatesAdded != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(stats.Warnings) != 1 {
		t.Errorf("warnings = %v", stats.Warnings)
	}

	h, _ := r.History(ctx)
	var ids []string
	for _, s := range h {
		ids = append(ids, s.ID)
	}
	if len(h) != 3 || h[0].ID != "z" || h[1].ID != "a" || h[1].Title != "imported" || h[2].ID != "b" {
		t.Errorf("history ids = %v", ids)
	}

	logs, err := r.Store().QueryImportLogs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Status != storage.StatusSuccess || logs[0].Source != "backup.json" || logs[0].SessionsAdded != 1 {
		t.Errorf("import logs = %+v", logs)
	}
}

func TestImportReplaceNothing(t *testing.T) {
	ctx := context.Background()
	imp, r := newTestImporter(t, false)
	if err := r.PrependTemplate(ctx, models.Template{ID: "T", Name: "Keep"}); err != nil {
		t.Fatal(err)
	}

	_, err := imp.Import(ctx, "empty.json", []byte(`{"version":1,"sessions":[],"templates":[]}`), backup.Replace)
	if !errors.Is(err, ErrNothingToReplace) {
		t.Fatalf("err = %v, want ErrNothingToReplace", err)
	}
	tp, _ := r.Templates(ctx)
	if len(tp) != 1 {
		t.Errorf("templates = %+v", tp)
	}
	logs, _ := r.Store().QueryImportLogs(ctx, 10)
	if len(logs) != 1 || logs[0].Status != storage.StatusNoop || logs[0].ErrorMessage == nil {
		t.Errorf("import logs = %+v", logs)
	}
}

func TestImportReplaceKeepsUnaddressedCategory(t *testing.T) {
	ctx := context.Background()
	imp, r := newTestImporter(t, false)
	if err := r.PrependTemplate(ctx, models.Template{ID: "T", Name: "Keep"}); err != nil {
		t.Fatal(err)
	}
	if err := r.PrependSession(ctx, models.Session{ID: "old", Date: "2023-01-01"}); err != nil {
		t.Fatal(err)
	}

	stats, err := imp.Import(ctx, "s.json", []byte(`{"version":1,"sessions":[{"id":"new","date":"2024-01-01"}]}`), backup.Replace)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.SessionsChanged || stats.TemplatesChanged {
		t.Errorf("stats = %+v", stats)
	}
	h, _ := r.History(ctx)
	tp, _ := r.Templates(ctx)
	if len(h) != 1 || h[0].ID != "new" || len(tp) != 1 || tp[0].ID != "T" {
		t.Errorf("history = %+v, templates = %+v", h, tp)
	}
}

func TestImportDecodeError(t *testing.T) {
	ctx := context.Background()
	imp, r := newTestImporter(t, false)

	if _, err := imp.Import(ctx, "bad.json", []byte("{oops"), backup.Merge); !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	logs, _ := r.Store().QueryImportLogs(ctx, 10)
	if len(logs) != 1 || logs[0].Status != storage.StatusError {
		t.Errorf("import logs = %+v", logs)
	}
}

func TestImportDryRun(t *testing.T) {
	ctx := context.Background()
	imp, r := newTestImporter(t, true)

	stats, err := imp.Import(ctx, "backup.json", []byte(v1Backup), backup.Replace)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.DryRun || !stats.Changed() {
		t.Errorf("stats = %+v", stats)
	}
	h, _ := r.History(ctx)
	if len(h) != 0 {
		t.Errorf("dry run wrote history: %+v", h)
	}
	logs, _ := r.Store().QueryImportLogs(ctx, 10)
	if len(logs) != 0 {
		t.Errorf("dry run wrote import logs: %+v", logs)
	}
}

func TestStageCommit(t *testing.T) {
	ctx := context.Background()
	imp, r := newTestImporter(t, false)
	clock := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)
	imp.now = func() time.Time { return clock }

	p, err := Analyze([]byte(v1Backup))
	if err != nil {
		t.Fatal(err)
	}
	tok := imp.Stage("upload", p)

	if got, err := imp.Staged(tok); err != nil || got.Counts().Sessions != 2 {
		t.Fatalf("Staged = %+v, %v", got.Counts(), err)
	}
	if _, err := imp.Commit(ctx, "nope", backup.Merge); !errors.Is(err, ErrPreviewNotFound) {
		t.Errorf("unknown token err = %v", err)
	}
	if _, err := imp.Commit(ctx, tok, backup.Merge); err != nil {
		t.Fatal(err)
	}
	if _, err := imp.Commit(ctx, tok, backup.Merge); !errors.Is(err, ErrPreviewNotFound) {
		t.Errorf("second commit err = %v, want ErrPreviewNotFound", err)
	}
	h, _ := r.History(ctx)
	if len(h) != 2 {
		t.Errorf("history = %d sessions", len(h))
	}

	expired := imp.Stage("upload", p)
	clock = clock.Add(DefaultPreviewTTL + time.Second)
	if _, err := imp.Staged(expired); !errors.Is(err, ErrPreviewNotFound) {
		t.Errorf("expired token err = %v", err)
	}
}

func TestApplyUnknownPolicy(t *testing.T) {
	imp, _ := newTestImporter(t, false)
	p, _ := Analyze([]byte(v1Backup))
	if _, err := imp.Apply(context.Background(), "x", p, backup.Policy("wipe")); !errors.Is(err, backup.ErrUnknownPolicy) {
		t.Errorf("err = %v", err)
	}
}
