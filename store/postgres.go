package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PGPool abstracts pgxpool.Pool for testability.
type PGPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres keeps the keyspace in a single kv table.
type Postgres struct {
	pool PGPool
}

func NewPostgres(pool PGPool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the kv table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("store: create kv table: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: select kv: %w", err)
	}
	return value, true, nil
}

func (p *Postgres) Apply(ctx context.Context, muts []Mutation) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const upsertSQL = `
INSERT INTO kv (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now();
`
	for _, m := range muts {
		if m.Key == "" {
			return ErrEmptyKey
		}
		if m.Delete {
			if _, err := tx.Exec(ctx, `DELETE FROM kv WHERE key = $1`, m.Key); err != nil {
				return fmt.Errorf("store: delete %q: %w", m.Key, err)
			}
			continue
		}
		if _, err := tx.Exec(ctx, upsertSQL, m.Key, m.Value); err != nil {
			return fmt.Errorf("store: upsert %q: %w", m.Key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}
