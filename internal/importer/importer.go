// Package importer decodes backup files, stages their previews and applies
// them to the persisted record set.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/trelog/internal/backup"
	"github.com/claude/trelog/internal/models"
	"github.com/claude/trelog/internal/storage"
	"github.com/google/uuid"
)

var (
	// ErrDecode means the input is not JSON; nothing was analyzed.
	ErrDecode = errors.New("backup is not valid JSON")
	// ErrNothingToReplace means replace was requested for an import with
	// neither sessions nor templates. Nothing was changed.
	ErrNothingToReplace = errors.New("import has no sessions or templates to replace with")
	ErrPreviewNotFound  = errors.New("import preview not found or expired")
)

// DefaultPreviewTTL is how long a staged preview can be committed.
const DefaultPreviewTTL = 15 * time.Minute

// Stats reports the outcome of one import.
type Stats struct {
	Source          string        `json:"source"`
	Policy          backup.Policy `json:"policy"`
	DeclaredVersion int           `json:"declaredVersion"`

	SessionsReceived  int `json:"sessionsReceived"`
	TemplatesReceived int `json:"templatesReceived"`
	SessionsAdded     int `json:"sessionsAdded"`
	SessionsUpdated   int `json:"sessionsUpdated"`
	TemplatesAdded    int `json:"templatesAdded"`
	TemplatesUpdated  int `json:"templatesUpdated"`

	SessionsChanged  bool `json:"sessionsChanged"`
	TemplatesChanged bool `json:"templatesChanged"`

	Warnings []string      `json:"warnings"`
	Duration time.Duration `json:"durationNs"`
	DryRun   bool          `json:"dryRun"`
}

// Changed reports whether the import modified anything (or would have, in a
// dry run).
func (s *Stats) Changed() bool {
	return s.SessionsChanged || s.TemplatesChanged
}

// Decode parses raw file content.
func Decode(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}

// Analyze decodes data and analyzes it.
func Analyze(data []byte) (backup.Preview, error) {
	raw, err := Decode(data)
	if err != nil {
		return backup.Preview{}, err
	}
	return backup.Analyze(raw), nil
}

type staged struct {
	source  string
	preview backup.Preview
	expires time.Time
}

// Importer reconciles analyzed backups into the persisted record set.
type Importer struct {
	records *storage.Records
	log     *slog.Logger
	dryRun  bool

	ttl      time.Duration
	now      func() time.Time
	newToken func() string

	mu      sync.Mutex
	pending map[string]staged
}

// New creates a new Importer. In dry-run mode nothing is persisted and no
// import log is written.
func New(records *storage.Records, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{
		records:  records,
		log:      log,
		dryRun:   dryRun,
		ttl:      DefaultPreviewTTL,
		now:      time.Now,
		newToken: uuid.NewString,
		pending:  map[string]staged{},
	}
}

// Stage keeps p for a later Commit and returns its token.
func (imp *Importer) Stage(source string, p backup.Preview) string {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	now := imp.now()
	for tok, s := range imp.pending {
		if now.After(s.expires) {
			delete(imp.pending, tok)
		}
	}
	tok := imp.newToken()
	imp.pending[tok] = staged{source: source, preview: p, expires: now.Add(imp.ttl)}
	return tok
}

// Staged returns the preview for token.
func (imp *Importer) Staged(token string) (backup.Preview, error) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	s, ok := imp.lookupLocked(token)
	if !ok {
		return backup.Preview{}, ErrPreviewNotFound
	}
	return s.preview, nil
}

// Discard drops a staged preview.
func (imp *Importer) Discard(token string) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	delete(imp.pending, token)
}

func (imp *Importer) lookupLocked(token string) (staged, bool) {
	s, ok := imp.pending[token]
	if !ok {
		return staged{}, false
	}
	if imp.now().After(s.expires) {
		delete(imp.pending, token)
		return staged{}, false
	}
	return s, true
}

// Commit applies a staged preview. The token is consumed unless the
// preview could not be applied because of a storage failure.
func (imp *Importer) Commit(ctx context.Context, token string, policy backup.Policy) (*Stats, error) {
	imp.mu.Lock()
	s, ok := imp.lookupLocked(token)
	imp.mu.Unlock()
	if !ok {
		return nil, ErrPreviewNotFound
	}

	stats, err := imp.Apply(ctx, s.source, s.preview, policy)
	if err == nil || errors.Is(err, ErrNothingToReplace) {
		imp.Discard(token)
	}
	return stats, err
}

// Import decodes, analyzes and applies data in one step.
func (imp *Importer) Import(ctx context.Context, source string, data []byte, policy backup.Policy) (*Stats, error) {
	p, err := Analyze(data)
	if err != nil {
		imp.writeLog(ctx, storage.ImportLog{Source: source, Policy: string(policy), Status: storage.StatusError}, err)
		return nil, err
	}
	return imp.Apply(ctx, source, p, policy)
}

// Apply reconciles p with the stored collections under policy and persists
// the result. Replace with an empty import returns ErrNothingToReplace and
// changes nothing.
func (imp *Importer) Apply(ctx context.Context, source string, p backup.Preview, policy backup.Policy) (*Stats, error) {
	start := imp.now()
	counts := p.Counts()
	stats := &Stats{
		Source:            source,
		Policy:            policy,
		DeclaredVersion:   p.DeclaredVersion(),
		SessionsReceived:  counts.Sessions,
		TemplatesReceived: counts.Templates,
		Warnings:          p.Warnings(),
		DryRun:            imp.dryRun,
	}
	if stats.Warnings == nil {
		stats.Warnings = []string{}
	}

	if policy != backup.Merge && policy != backup.Replace {
		return stats, fmt.Errorf("%w: %q", backup.ErrUnknownPolicy, policy)
	}
	if policy == backup.Replace && p.Empty() {
		stats.Duration = imp.now().Sub(start)
		imp.writeLog(ctx, imp.logEntry(stats, storage.StatusNoop), ErrNothingToReplace)
		return stats, ErrNothingToReplace
	}

	err := imp.records.Update(ctx, func(sessions []models.Session, templates []models.Template) (storage.Change, error) {
		res := backup.Reconcile(sessions, templates, p, policy)
		stats.SessionsAdded, stats.SessionsUpdated = res.SessionsAdded, res.SessionsUpdated
		stats.TemplatesAdded, stats.TemplatesUpdated = res.TemplatesAdded, res.TemplatesUpdated
		stats.SessionsChanged, stats.TemplatesChanged = res.SessionsChanged, res.TemplatesChanged

		var ch storage.Change
		if imp.dryRun {
			return ch, nil
		}
		if res.SessionsChanged {
			ch.Sessions = res.Sessions
		}
		if res.TemplatesChanged {
			ch.Templates = res.Templates
		}
		return ch, nil
	})
	stats.Duration = imp.now().Sub(start)
	if err != nil {
		imp.writeLog(ctx, imp.logEntry(stats, storage.StatusError), err)
		return stats, fmt.Errorf("applying import: %w", err)
	}

	status := storage.StatusSuccess
	if !stats.Changed() {
		status = storage.StatusNoop
	}
	imp.writeLog(ctx, imp.logEntry(stats, status), nil)
	imp.log.Info("import applied",
		"source", source,
		"policy", policy,
		"dry_run", imp.dryRun,
		"sessions_added", stats.SessionsAdded,
		"sessions_updated", stats.SessionsUpdated,
		"templates_added", stats.TemplatesAdded,
		"templates_updated", stats.TemplatesUpdated,
		"warnings", len(stats.Warnings),
	)
	return stats, nil
}

func (imp *Importer) logEntry(stats *Stats, status string) storage.ImportLog {
	ms := int(stats.Duration.Milliseconds())
	return storage.ImportLog{
		CreatedAt:         imp.now(),
		Source:            stats.Source,
		Policy:            string(stats.Policy),
		Status:            status,
		DeclaredVersion:   stats.DeclaredVersion,
		SessionsReceived:  stats.SessionsReceived,
		TemplatesReceived: stats.TemplatesReceived,
		SessionsAdded:     stats.SessionsAdded,
		SessionsUpdated:   stats.SessionsUpdated,
		TemplatesAdded:    stats.TemplatesAdded,
		TemplatesUpdated:  stats.TemplatesUpdated,
		Warnings:          stats.Warnings,
		DurationMs:        &ms,
	}
}

// writeLog records an import log entry. A failure to log does not fail the
// import.
func (imp *Importer) writeLog(ctx context.Context, entry storage.ImportLog, cause error) {
	if imp.dryRun {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = imp.now()
	}
	if cause != nil {
		msg := cause.Error()
		entry.ErrorMessage = &msg
	}
	if _, err := imp.records.Store().InsertImportLog(ctx, entry); err != nil {
		imp.log.Warn("failed to write import log", "source", entry.Source, "error", err)
	}
}
