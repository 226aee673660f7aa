// Package store is the persistent key-value substrate the settlement engine
// runs on. Configuration fields, agreement records and ledger balances share
// one flat keyspace; keeping them apart is the caller's responsibility.
package store

import (
	"context"
	"errors"
)

// ErrEmptyKey is returned when a caller tries to address the empty key.
var ErrEmptyKey = errors.New("store: empty key")

// KV is the read/write view an operation works against.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Mutation is a single staged write. Delete wins over Value.
type Mutation struct {
	Key    string
	Value  []byte
	Delete bool
}

// Backend is a durable store. Apply must persist all mutations or none.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Apply(ctx context.Context, muts []Mutation) error
}
