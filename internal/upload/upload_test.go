package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/claude/trelog/internal/backup"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testClient(url string) *Client {
	c := NewClient(url, "k")
	c.backoff = func(int) time.Duration { return 0 }
	return c
}

const twoSessions = `{"__type":"trelog-backup","version":1,"sessions":[
	{"id":"a","date":"2024-01-01","exercises":[]},
	{"id":"b","date":"2024-01-02","exercises":[]}
]}`

// importServer counts import calls and answers with fixed stats.
func importServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/import" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "k" {
			t.Errorf("X-API-Key = %q, want k", got)
		}
		if got := r.URL.Query().Get("policy"); got != "merge" {
			t.Errorf("policy = %q, want merge", got)
		}
		calls.Add(1)
		json.NewEncoder(w).Encode(Result{SessionsReceived: 2, SessionsAdded: 2, Warnings: []string{}})
	}))
}

func TestRunUploadsOnce(t *testing.T) {
	var calls atomic.Int32
	ts := importServer(t, &calls)
	defer ts.Close()

	dir := t.TempDir()
	writeFile(t, dir, "trelog-backup-2024-01-02.json", twoSessions)
	writeFile(t, dir, "broken.json", "{nope")
	writeFile(t, dir, "empty.json", `{"sessions":[]}`)
	writeFile(t, dir, "notes.txt", "ignored")

	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	stats, err := New(testClient(ts.URL), state, dir, backup.Merge, false, quietLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := Stats{FilesTotal: 3, FilesUploaded: 1, FilesSkipped: 1, FilesErrored: 1, SessionsSent: 2, SessionsAdded: 2}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}

	stats, err = New(testClient(ts.URL), state, dir, backup.Merge, false, quietLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesUploaded != 0 || stats.FilesSkipped != 2 {
		t.Errorf("second run stats = %+v", *stats)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}

	// A changed file is sent again.
	writeFile(t, dir, "trelog-backup-2024-01-02.json", twoSessions+"\n")
	stats, _ = New(testClient(ts.URL), state, dir, backup.Merge, false, quietLog()).Run(context.Background())
	if stats.FilesUploaded != 1 || calls.Load() != 2 {
		t.Errorf("after change stats = %+v, calls = %d", *stats, calls.Load())
	}
}

func TestRunDryRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", twoSessions)

	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	stats, err := New(nil, state, dir, backup.Merge, true, quietLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.SessionsSent != 2 || stats.FilesUploaded != 0 {
		t.Errorf("stats = %+v", *stats)
	}
	got, err := state.Deliveries(context.Background(), "")
	if err != nil || len(got) != 0 {
		t.Errorf("dry run recorded state: %v, %v", got, err)
	}
}

func TestRunMissingDir(t *testing.T) {
	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	if _, err := New(nil, state, filepath.Join(t.TempDir(), "nope"), backup.Merge, true, quietLog()).Run(context.Background()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestSendBackupRetries(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(Result{SessionsAdded: 1})
	}))
	defer ts.Close()

	res, err := testClient(ts.URL).SendBackup(context.Background(), "f.json", []byte(twoSessions), backup.Merge)
	if err != nil {
		t.Fatal(err)
	}
	if res.SessionsAdded != 1 || calls.Load() != 3 {
		t.Errorf("res = %+v after %d calls", res, calls.Load())
	}
}

func TestSendBackupRejected(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"import has no sessions or templates to replace with"}`))
	}))
	defer ts.Close()

	_, err := testClient(ts.URL).SendBackup(context.Background(), "f.json", []byte(`{}`), backup.Replace)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestPing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"login":"local"}`))
	}))
	defer ts.Close()

	if err := testClient(ts.URL).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := NewClient(ts.URL, "wrong").Ping(context.Background()); err == nil {
		t.Error("expected ping failure with wrong key")
	}
}

func TestStateDB(t *testing.T) {
	ctx := context.Background()
	state, err := OpenStateDB(filepath.Join(t.TempDir(), "nested"))
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	d := Delivery{Server: "srv", Path: "a.json", Size: 10, Hash: "h1", Policy: backup.Merge,
		Result: Result{SessionsAdded: 3, TemplatesUpdated: 1}, UploadedAt: at}
	if err := state.Record(ctx, d); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name         string
		server, path string
		size         int64
		hash         string
		policy       backup.Policy
		want         bool
	}{
		{"same", "srv", "a.json", 10, "h1", backup.Merge, true},
		{"changed hash", "srv", "a.json", 10, "h2", backup.Merge, false},
		{"changed size", "srv", "a.json", 11, "h1", backup.Merge, false},
		{"other server", "other", "a.json", 10, "h1", backup.Merge, false},
		{"other policy", "srv", "a.json", 10, "h1", backup.Replace, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := state.Delivered(ctx, tt.server, tt.path, tt.size, tt.hash, tt.policy)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Delivered = %v, want %v", got, tt.want)
			}
		})
	}

	list, err := state.Deliveries(ctx, "srv")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(list))
	}
	if list[0].Result.SessionsAdded != 3 || list[0].Result.TemplatesUpdated != 1 || !list[0].UploadedAt.Equal(at) {
		t.Errorf("delivery = %+v", list[0])
	}

	n, err := state.Forget(ctx, "srv")
	if err != nil || n != 1 {
		t.Fatalf("Forget = %d, %v", n, err)
	}
	if ok, _ := state.Delivered(ctx, "srv", "a.json", 10, "h1", backup.Merge); ok {
		t.Error("delivery survived Forget")
	}
}

func TestRunResendsUnderOtherPolicy(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(Result{SessionsReceived: 2})
	}))
	defer ts.Close()

	dir := t.TempDir()
	writeFile(t, dir, "a.json", twoSessions)
	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	for _, policy := range []backup.Policy{backup.Merge, backup.Merge, backup.Replace} {
		if _, err := New(testClient(ts.URL), state, dir, policy, false, quietLog()).Run(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2", calls.Load())
	}
}
