package store

import (
	"context"
	"fmt"
)

// Batch stages the writes of one invocation on top of a Backend. Reads see
// staged writes first. Nothing reaches the backend until Commit.
type Batch struct {
	backend Backend
	staged  map[string]Mutation
	order   []string
}

func NewBatch(backend Backend) *Batch {
	return &Batch{
		backend: backend,
		staged:  make(map[string]Mutation),
	}
}

func (b *Batch) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	if m, ok := b.staged[key]; ok {
		if m.Delete {
			return nil, false, nil
		}
		return clone(m.Value), true, nil
	}
	v, ok, err := b.backend.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("store: get %q: %w", key, err)
	}
	return v, ok, nil
}

func (b *Batch) Put(_ context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	b.stage(Mutation{Key: key, Value: clone(value)})
	return nil
}

func (b *Batch) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	b.stage(Mutation{Key: key, Delete: true})
	return nil
}

func (b *Batch) stage(m Mutation) {
	if _, seen := b.staged[m.Key]; !seen {
		b.order = append(b.order, m.Key)
	}
	b.staged[m.Key] = m
}

// Mutations returns the staged writes in first-touch order.
func (b *Batch) Mutations() []Mutation {
	out := make([]Mutation, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, b.staged[k])
	}
	return out
}

// Commit flushes the staged writes atomically and resets the batch.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.order) == 0 {
		return nil
	}
	if err := b.backend.Apply(ctx, b.Mutations()); err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	b.Discard()
	return nil
}

// Discard drops every staged write.
func (b *Batch) Discard() {
	b.staged = make(map[string]Mutation)
	b.order = nil
}

func clone(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
