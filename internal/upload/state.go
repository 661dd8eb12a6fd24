package upload

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/claude/trelog/internal/backup"
	_ "modernc.org/sqlite"
)

// Delivery is one file accepted by a server.
type Delivery struct {
	Server     string
	Path       string
	Size       int64
	Hash       string
	Policy     backup.Policy
	Result     Result
	UploadedAt time.Time
}

// StateDB remembers deliveries per server so unchanged files are not re-sent.
type StateDB struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStateDB opens (or creates) the SQLite state database at dir/state.db.
func OpenStateDB(dir string) (*StateDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS deliveries (
		server            TEXT NOT NULL,
		path              TEXT NOT NULL,
		size              INTEGER NOT NULL,
		hash              TEXT NOT NULL,
		policy            TEXT NOT NULL,
		sessions_added    INTEGER NOT NULL DEFAULT 0,
		sessions_updated  INTEGER NOT NULL DEFAULT 0,
		templates_added   INTEGER NOT NULL DEFAULT 0,
		templates_updated INTEGER NOT NULL DEFAULT 0,
		uploaded_at       TEXT NOT NULL,
		PRIMARY KEY (server, path)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state table: %w", err)
	}

	return &StateDB{db: db, now: time.Now}, nil
}

// Delivered reports whether server already accepted path with the same
// content under the same policy. Sending the same file with another policy
// is a new delivery.
func (s *StateDB) Delivered(ctx context.Context, server, path string, size int64, hash string, policy backup.Policy) (bool, error) {
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT policy FROM deliveries WHERE server = ? AND path = ? AND size = ? AND hash = ?`,
		server, path, size, hash,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking delivery of %s: %w", path, err)
	}
	return backup.Policy(stored) == policy, nil
}

// Record stores d, replacing any earlier delivery of the same path.
func (s *StateDB) Record(ctx context.Context, d Delivery) error {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO deliveries
			(server, path, size, hash, policy, sessions_added, sessions_updated, templates_added, templates_updated, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Server, d.Path, d.Size, d.Hash, string(d.Policy),
		d.Result.SessionsAdded, d.Result.SessionsUpdated, d.Result.TemplatesAdded, d.Result.TemplatesUpdated,
		d.UploadedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording delivery of %s: %w", d.Path, err)
	}
	return nil
}

// Deliveries lists what server has accepted, oldest first.
func (s *StateDB) Deliveries(ctx context.Context, server string) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, size, hash, policy, sessions_added, sessions_updated, templates_added, templates_updated, uploaded_at
		FROM deliveries WHERE server = ? ORDER BY uploaded_at, path`, server)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d := Delivery{Server: server}
		var policy, at string
		if err := rows.Scan(&d.Path, &d.Size, &d.Hash, &policy,
			&d.Result.SessionsAdded, &d.Result.SessionsUpdated, &d.Result.TemplatesAdded, &d.Result.TemplatesUpdated,
			&at); err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		d.Policy = backup.Policy(policy)
		d.UploadedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Forget drops every delivery recorded for server so the next run sends
// all files again.
func (s *StateDB) Forget(ctx context.Context, server string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE server = ?`, server)
	if err != nil {
		return 0, fmt.Errorf("forgetting deliveries: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the state database.
func (s *StateDB) Close() error {
	return s.db.Close()
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
