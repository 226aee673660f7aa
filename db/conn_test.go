package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"sunnyflow/config"
	"sunnyflow/store"
)

func TestOpen_Memory(t *testing.T) {
	cfg := config.Default()
	conn, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if _, ok := conn.Backend.(*store.Memory); !ok {
		t.Fatalf("expected memory backend, got %T", conn.Backend)
	}
	if conn.Pool != nil {
		t.Fatalf("memory store must not dial postgres")
	}
}

func TestOpen_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Store = config.StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "sunny.db")

	conn, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := conn.Backend.Apply(ctx, []store.Mutation{{Key: "dapp_name", Value: []byte("sunny")}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	v, ok, err := reopened.Backend.Get(ctx, "dapp_name")
	if err != nil || !ok || string(v) != "sunny" {
		t.Fatalf("expected persisted value, got %q %v %v", v, ok, err)
	}
}

func TestOpen_UnknownStore(t *testing.T) {
	cfg := config.Default()
	cfg.Store = "etcd"
	if _, err := Open(context.Background(), cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewPool_EmptyDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty connection string")
	}
}
