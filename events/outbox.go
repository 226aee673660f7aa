package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer abstracts pgxpool.Pool for testability.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGOutbox appends events to a transactional outbox table for a relay to deliver.
type PGOutbox struct {
	db Execer
}

func NewPGOutbox(db Execer) *PGOutbox {
	return &PGOutbox{db: db}
}

func (o *PGOutbox) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS outbox (
    id         UUID PRIMARY KEY,
    topic      TEXT NOT NULL,
    payload    JSONB NOT NULL,
    status     TEXT NOT NULL DEFAULT 'pending',
    attempts   INT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
	if _, err := o.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("events: create outbox table: %w", err)
	}
	return nil
}

// Emit enqueues ev. Replaying the same event id is a no-op.
func (o *PGOutbox) Emit(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		return fmt.Errorf("events: outbox requires an event id")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal outbox payload: %w", err)
	}
	const q = `INSERT INTO outbox (id, topic, payload) VALUES ($1::uuid, $2, $3::jsonb) ON CONFLICT (id) DO NOTHING`
	if _, err := o.db.Exec(ctx, q, ev.ID, "sunnyflow."+ev.Name, string(payload)); err != nil {
		return fmt.Errorf("events: enqueue outbox: %w", err)
	}
	return nil
}
