// Package upload sends a folder of exported trelog backups to a remote
// server, skipping files that were already delivered unchanged.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/claude/trelog/internal/backup"
)

// Stats tracks upload progress.
type Stats struct {
	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int

	SessionsSent     int
	TemplatesSent    int
	SessionsAdded    int
	SessionsUpdated  int
	TemplatesAdded   int
	TemplatesUpdated int
	Warnings         int
}

// Uploader walks a directory of backup files and POSTs each new or changed
// file to the trelog server.
type Uploader struct {
	client *Client
	state  *StateDB
	dir    string
	policy backup.Policy
	dryRun bool
	log    *slog.Logger
	stats  Stats
}

// New creates a new Uploader. In dry-run mode client may be nil: files are
// analyzed locally and nothing is sent or recorded.
func New(client *Client, state *StateDB, dir string, policy backup.Policy, dryRun bool, log *slog.Logger) *Uploader {
	return &Uploader{
		client: client,
		state:  state,
		dir:    dir,
		policy: policy,
		dryRun: dryRun,
		log:    log,
	}
}

// Run executes the upload pipeline. Files are sent in name order, which
// for exported backups is export-date order. A failing file is counted and
// skipped; only an unreadable directory aborts the run.
func (u *Uploader) Run(ctx context.Context) (*Stats, error) {
	files, err := filepath.Glob(filepath.Join(u.dir, "*.json"))
	if err != nil {
		return &u.stats, fmt.Errorf("listing %s: %w", u.dir, err)
	}
	if _, err := os.Stat(u.dir); err != nil {
		return &u.stats, fmt.Errorf("reading %s: %w", u.dir, err)
	}
	sort.Strings(files)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return &u.stats, err
		}
		u.stats.FilesTotal++
		u.processFile(ctx, f)
	}
	return &u.stats, nil
}

func (u *Uploader) server() string {
	if u.client == nil {
		return ""
	}
	return u.client.serverURL
}

func (u *Uploader) processFile(ctx context.Context, f string) {
	relPath, _ := filepath.Rel(u.dir, f)
	data, err := os.ReadFile(f)
	if err != nil {
		u.log.Warn("read failed", "file", f, "error", err)
		u.stats.FilesErrored++
		return
	}
	size, hash := int64(len(data)), digest(data)

	if !u.dryRun {
		done, err := u.state.Delivered(ctx, u.server(), relPath, size, hash, u.policy)
		if err != nil {
			u.log.Warn("state check failed", "file", relPath, "error", err)
			u.stats.FilesErrored++
			return
		}
		if done {
			u.stats.FilesSkipped++
			return
		}
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		u.log.Warn("parse failed", "file", relPath, "error", err)
		u.stats.FilesErrored++
		return
	}
	p := backup.Analyze(raw)
	counts := p.Counts()
	if p.Empty() {
		u.log.Info("no sessions or templates, skipping", "file", relPath)
		u.stats.FilesSkipped++
		return
	}

	if u.dryRun {
		u.log.Info("would upload",
			"file", relPath,
			"sessions", counts.Sessions,
			"templates", counts.Templates,
			"warnings", len(p.Warnings()),
		)
		u.stats.SessionsSent += counts.Sessions
		u.stats.TemplatesSent += counts.Templates
		u.stats.Warnings += len(p.Warnings())
		return
	}

	res, err := u.client.SendBackup(ctx, relPath, data, u.policy)
	if err != nil {
		u.log.Warn("upload failed", "file", relPath, "error", err)
		u.stats.FilesErrored++
		return
	}
	d := Delivery{Server: u.server(), Path: relPath, Size: size, Hash: hash, Policy: u.policy, Result: *res}
	if err := u.state.Record(ctx, d); err != nil {
		u.log.Warn("failed to record upload", "file", relPath, "error", err)
	}

	u.stats.FilesUploaded++
	u.stats.SessionsSent += res.SessionsReceived
	u.stats.TemplatesSent += res.TemplatesReceived
	u.stats.SessionsAdded += res.SessionsAdded
	u.stats.SessionsUpdated += res.SessionsUpdated
	u.stats.TemplatesAdded += res.TemplatesAdded
	u.stats.TemplatesUpdated += res.TemplatesUpdated
	u.stats.Warnings += len(res.Warnings)
	u.log.Info("uploaded",
		"file", relPath,
		"sessions_added", res.SessionsAdded,
		"sessions_updated", res.SessionsUpdated,
		"templates_added", res.TemplatesAdded,
		"templates_updated", res.TemplatesUpdated,
	)
}
