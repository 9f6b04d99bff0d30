package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"conductor-console/pkg/platform/sentinel"
)

// Schema creates the table backing PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS console_storage (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists device storage in PostgreSQL.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

// PostgresStoreOption configures a PostgresStore instance.
type PostgresStoreOption func(*PostgresStore)

// WithClock sets the clock used for updated_at.
func WithClock(clock func() time.Time) PostgresStoreOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresStoreOption) *PostgresStore {
	s := &PostgresStore{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// EnsureSchema creates the storage table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create console_storage: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM console_storage WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// SetMany upserts every pair in one transaction.
func (s *PostgresStore) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin storage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.clock()
	for k, v := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO console_storage (key, value, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = EXCLUDED.updated_at
		`, k, v, now)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit storage tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM console_storage WHERE key = ANY($1)`, pq.Array(keys)); err != nil {
		return fmt.Errorf("delete storage keys: %w", err)
	}
	return nil
}
