package store

import (
	"context"
	"sync"
)

// Store is the durable backing for the watched workload name set.
// Load of a store that does not exist yet returns an empty slice.
// Save replaces the full content atomically: a concurrent Load observes
// either the previous or the new set, never a partial write.
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, names []string) error
	Close() error
}

// Memory is an in-process Store. It is used by tests and by embedders
// that do not need persistence.
type Memory struct {
	mu    sync.Mutex
	names []string
}

func NewMemory(names ...string) *Memory {
	return &Memory{names: append([]string(nil), names...)}
}

func (m *Memory) Load(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.names...), nil
}

func (m *Memory) Save(_ context.Context, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append([]string(nil), names...)
	return nil
}

func (m *Memory) Close() error { return nil }
