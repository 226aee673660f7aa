package store

import (
	"context"
	"sync"
)

// Memory is an in-process Backend.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (m *Memory) Apply(_ context.Context, muts []Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mut := range muts {
		if mut.Key == "" {
			return ErrEmptyKey
		}
	}
	for _, mut := range muts {
		if mut.Delete {
			delete(m.data, mut.Key)
			continue
		}
		m.data[mut.Key] = clone(mut.Value)
	}
	return nil
}

// Snapshot copies the whole keyspace.
func (m *Memory) Snapshot() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		out[k] = clone(v)
	}
	return out
}

// Put writes through immediately, so Memory can serve as a KV directly.
func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	return m.Apply(ctx, []Mutation{{Key: key, Value: value}})
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	return m.Apply(ctx, []Mutation{{Key: key, Delete: true}})
}
