package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps settings in the relay_settings table.
type PostgresStore struct {
	pool rowQuerier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("settings: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithExec(exec rowQuerier) *PostgresStore {
	if exec == nil {
		panic("settings: exec required")
	}
	return &PostgresStore{pool: exec}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	query := `SELECT value FROM relay_settings WHERE key = $1`
	var value string
	if err := s.pool.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("settings: select %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO relay_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("settings: upsert %s: %w", key, err)
	}
	return nil
}
