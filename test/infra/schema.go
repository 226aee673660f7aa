package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sunnyflow/events"
	"sunnyflow/store"
)

// PGStack is a keyspace and an outbox sharing one pool.
type PGStack struct {
	Pool    *pgxpool.Pool
	Backend *store.Postgres
	Outbox  *events.PGOutbox
}

// OpenPostgres connects to dsn and creates the kv and outbox tables. When
// isolate is true they live in a per-run schema that teardown drops.
func OpenPostgres(ctx context.Context, dsn string, isolate bool) (*PGStack, func(context.Context) error, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse pool config: %w", err)
	}

	cleanup := func(context.Context) error { return nil }

	if isolate {
		ident := pgx.Identifier{fmt.Sprintf("stress_run_%d", time.Now().UnixNano())}.Sanitize()
		if err := execOnce(ctx, dsn, "CREATE SCHEMA "+ident); err != nil {
			return nil, nil, fmt.Errorf("create schema: %w", err)
		}
		setPath := "SET search_path TO " + ident
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, setPath)
			return err
		}
		cleanup = func(ctx context.Context) error {
			return execOnce(ctx, dsn, "DROP SCHEMA IF EXISTS "+ident+" CASCADE")
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect pool: %w", err)
	}

	s := &PGStack{
		Pool:    pool,
		Backend: store.NewPostgres(pool),
		Outbox:  events.NewPGOutbox(pool),
	}
	if err := s.Backend.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.Outbox.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, cleanup, nil
}

// CountOutbox returns how many events reached the outbox table.
func (s *PGStack) CountOutbox(ctx context.Context) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n)
	return n, err
}

func execOnce(ctx context.Context, dsn, sql string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, sql)
	return err
}
