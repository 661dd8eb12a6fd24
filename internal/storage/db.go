// Package storage persists the record set as a key-value store with an
// import log, on SQLite or PostgreSQL.
package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrUnknownDriver = errors.New("unknown storage driver")
	// ErrNotFound is returned by Get on a missing key.
	ErrNotFound = errors.New("key not found")
)

// Store is a synchronous key-value store plus the import log.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// PutMany writes every entry in one transaction: all of them or none.
	PutMany(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, key string) error

	InsertImportLog(ctx context.Context, log ImportLog) (int64, error)
	QueryImportLogs(ctx context.Context, limit int) ([]ImportLog, error)

	Close() error
}

// sortedKeys returns the keys of entries in a stable order so concurrent
// transactions lock rows in the same sequence.
func sortedKeys(entries map[string][]byte) []string {
	return slices.Sorted(maps.Keys(entries))
}

// Open migrates and opens the store. target is a file path for sqlite and a
// connection string for postgres.
func Open(ctx context.Context, driver, target string, log *slog.Logger) (Store, error) {
	if err := RunMigrations(driver, target); err != nil {
		return nil, err
	}
	log.Info("migrations applied", "driver", driver)

	switch driver {
	case DriverSQLite:
		return OpenSQLite(ctx, target)
	case DriverPostgres:
		return OpenPostgres(ctx, target)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}

// RunMigrations applies all pending embedded migrations for driver.
func RunMigrations(driver, target string) error {
	var dbURL string
	switch driver {
	case DriverSQLite:
		dbURL = "sqlite://" + target
	case DriverPostgres:
		dbURL = target
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
