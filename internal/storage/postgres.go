package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore wraps a pgxpool.Pool.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// OpenPostgres creates a connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &PostgresStore{Pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.Pool.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return v, nil
}

const postgresUpsert = `INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.Pool.Exec(ctx, postgresUpsert, key, value); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) PutMany(ctx context.Context, entries map[string][]byte) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		for _, key := range sortedKeys(entries) {
			if _, err := tx.Exec(ctx, postgresUpsert, key, entries[key]); err != nil {
				return fmt.Errorf("writing %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.Pool.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.Pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
