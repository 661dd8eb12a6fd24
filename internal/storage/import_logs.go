package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Import log statuses.
const (
	StatusSuccess = "success"
	StatusNoop    = "noop"
	StatusError   = "error"
)

// ImportLog records one applied (or failed) import.
type ImportLog struct {
	ID                int64     `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	Source            string    `json:"source"`
	Policy            string    `json:"policy"`
	Status            string    `json:"status"`
	DeclaredVersion   int       `json:"declared_version"`
	SessionsReceived  int       `json:"sessions_received"`
	TemplatesReceived int       `json:"templates_received"`
	SessionsAdded     int       `json:"sessions_added"`
	SessionsUpdated   int       `json:"sessions_updated"`
	TemplatesAdded    int       `json:"templates_added"`
	TemplatesUpdated  int       `json:"templates_updated"`
	Warnings          []string  `json:"warnings"`
	DurationMs        *int      `json:"duration_ms"`
	ErrorMessage      *string   `json:"error_message"`
}

const defaultLogLimit = 50

func (l ImportLog) warningsJSON() (string, error) {
	w := l.Warnings
	if w == nil {
		w = []string{}
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("encoding warnings: %w", err)
	}
	return string(b), nil
}

func decodeWarnings(s string) []string {
	var w []string
	if err := json.Unmarshal([]byte(s), &w); err != nil || w == nil {
		return []string{}
	}
	return w
}

func createdAt(l ImportLog) time.Time {
	if l.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return l.CreatedAt.UTC()
}

// InsertImportLog creates a new import log entry and returns its ID.
func (s *SQLiteStore) InsertImportLog(ctx context.Context, log ImportLog) (int64, error) {
	warnings, err := log.warningsJSON()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO import_logs (created_at, source, policy, status, declared_version,
		 sessions_received, templates_received, sessions_added, sessions_updated,
		 templates_added, templates_updated, warnings, duration_ms, error_message)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		createdAt(log).UnixMilli(), log.Source, log.Policy, log.Status, log.DeclaredVersion,
		log.SessionsReceived, log.TemplatesReceived, log.SessionsAdded, log.SessionsUpdated,
		log.TemplatesAdded, log.TemplatesUpdated, warnings, log.DurationMs, log.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting import log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading import log id: %w", err)
	}
	return id, nil
}

// QueryImportLogs returns the most recent import logs, newest first.
func (s *SQLiteStore) QueryImportLogs(ctx context.Context, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, source, policy, status, declared_version,
		 sessions_received, templates_received, sessions_added, sessions_updated,
		 templates_added, templates_updated, warnings, duration_ms, error_message
		 FROM import_logs
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying import logs: %w", err)
	}
	defer rows.Close()

	result := []ImportLog{}
	for rows.Next() {
		var (
			l        ImportLog
			ms       int64
			warnings string
		)
		if err := rows.Scan(&l.ID, &ms, &l.Source, &l.Policy, &l.Status, &l.DeclaredVersion,
			&l.SessionsReceived, &l.TemplatesReceived, &l.SessionsAdded, &l.SessionsUpdated,
			&l.TemplatesAdded, &l.TemplatesUpdated, &warnings, &l.DurationMs, &l.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning import log: %w", err)
		}
		l.CreatedAt = time.UnixMilli(ms).UTC()
		l.Warnings = decodeWarnings(warnings)
		result = append(result, l)
	}
	return result, rows.Err()
}

// InsertImportLog creates a new import log entry and returns its ID.
func (s *PostgresStore) InsertImportLog(ctx context.Context, log ImportLog) (int64, error) {
	warnings, err := log.warningsJSON()
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.Pool.QueryRow(ctx,
		`INSERT INTO import_logs (created_at, source, policy, status, declared_version,
		 sessions_received, templates_received, sessions_added, sessions_updated,
		 templates_added, templates_updated, warnings, duration_ms, error_message)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		 RETURNING id`,
		createdAt(log), log.Source, log.Policy, log.Status, log.DeclaredVersion,
		log.SessionsReceived, log.TemplatesReceived, log.SessionsAdded, log.SessionsUpdated,
		log.TemplatesAdded, log.TemplatesUpdated, warnings, log.DurationMs, log.ErrorMessage,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting import log: %w", err)
	}
	return id, nil
}

// QueryImportLogs returns the most recent import logs, newest first.
func (s *PostgresStore) QueryImportLogs(ctx context.Context, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT id, created_at, source, policy, status, declared_version,
		 sessions_received, templates_received, sessions_added, sessions_updated,
		 templates_added, templates_updated, warnings::text, duration_ms, error_message
		 FROM import_logs
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying import logs: %w", err)
	}
	defer rows.Close()

	result := []ImportLog{}
	for rows.Next() {
		var (
			l        ImportLog
			warnings string
		)
		if err := rows.Scan(&l.ID, &l.CreatedAt, &l.Source, &l.Policy, &l.Status, &l.DeclaredVersion,
			&l.SessionsReceived, &l.TemplatesReceived, &l.SessionsAdded, &l.SessionsUpdated,
			&l.TemplatesAdded, &l.TemplatesUpdated, &warnings, &l.DurationMs, &l.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning import log: %w", err)
		}
		l.Warnings = decodeWarnings(warnings)
		result = append(result, l)
	}
	return result, rows.Err()
}
