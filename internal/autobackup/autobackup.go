// Package autobackup writes a snapshot of the record set after a quiet period
// following the last change, and restores from it on request.
package autobackup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/trelog/internal/backup"
	"github.com/claude/trelog/internal/migrate"
	"github.com/claude/trelog/internal/storage"
)

// DefaultDelay is the quiet period before a snapshot is written.
const DefaultDelay = 2500 * time.Millisecond

var ErrNoSnapshot = errors.New("no auto-backup snapshot")

// Scheduler debounces snapshot writes. Each Touch cancels the pending task
// and schedules a new one; only a task that is still current when its delay
// elapses writes.
type Scheduler struct {
	records *storage.Records
	delay   time.Duration
	now     func() time.Time
	log     *slog.Logger

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// New returns a Scheduler writing to records. A non-positive delay means DefaultDelay.
func New(records *storage.Records, delay time.Duration, log *slog.Logger) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Scheduler{records: records, delay: delay, now: time.Now, log: log}
}

// Touch records a change and (re)starts the quiet period.
func (s *Scheduler) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cancelLocked()

	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	s.timer = time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		defer cancel()
		s.run(ctx, gen)
	})
}

// Pending reports whether a write is scheduled and has not started.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Flush writes immediately if a write is pending, and waits for any write in
// progress.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.stopTimerLocked()
	s.mu.Unlock()

	s.wg.Wait()
	if !pending {
		return nil
	}
	return s.write(ctx)
}

// Stop discards any pending write, waits for one in progress and ignores
// further Touch calls.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.stopTimerLocked()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if gen != s.gen || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	if err := s.write(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error("auto-backup failed", "error", err)
	}
}

// cancelLocked stops the pending timer and cancels a write in progress.
func (s *Scheduler) cancelLocked() {
	s.stopTimerLocked()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// stopTimerLocked stops a timer that has not fired yet and reports whether it
// did. A timer that already fired is left to finish.
func (s *Scheduler) stopTimerLocked() bool {
	if s.timer == nil {
		return false
	}
	stopped := s.timer.Stop()
	s.timer = nil
	if stopped {
		s.wg.Done()
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
	}
	return stopped
}

func (s *Scheduler) write(ctx context.Context) error {
	sessions, templates, err := s.records.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("reading records: %w", err)
	}
	if err := s.records.SaveAutoBackup(ctx, backup.NewAutoBackup(sessions, templates, s.now())); err != nil {
		return fmt.Errorf("writing auto-backup: %w", err)
	}
	s.log.Debug("auto-backup written", "sessions", len(sessions), "templates", len(templates))
	return nil
}

// Restored reports what Restore replaced. A count is -1 when the snapshot
// did not carry that collection and it was left alone.
type Restored struct {
	Sessions  int `json:"sessions"`
	Templates int `json:"templates"`
}

// Restore replaces the live collections with the snapshot. Each collection is
// replaced only when the snapshot carries it as an array.
func Restore(ctx context.Context, records *storage.Records) (Restored, error) {
	raw, err := records.AutoBackup(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return Restored{}, ErrNoSnapshot
	}
	if err != nil {
		return Restored{}, err
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Restored{}, fmt.Errorf("decoding auto-backup: %w", err)
	}
	res := migrate.Migrate(doc)

	out := Restored{Sessions: -1, Templates: -1}
	var ch storage.Change
	if _, ok := doc["sessions"].([]any); ok {
		ch.Sessions = res.Sessions
		out.Sessions = len(res.Sessions)
	}
	if _, ok := doc["templates"].([]any); ok {
		ch.Templates = res.Templates
		out.Templates = len(res.Templates)
	}
	if err := records.Replace(ctx, ch); err != nil {
		return Restored{}, fmt.Errorf("restoring auto-backup: %w", err)
	}
	return out, nil
}
