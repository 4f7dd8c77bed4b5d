package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. Changes are visible to subscribers
// of the same MemoryStore only.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
	subs   subscribers

	// FailWrites makes Set fail, for exercising degraded paths.
	FailWrites error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.FailWrites != nil {
		m.mu.Unlock()
		return m.FailWrites
	}
	m.data[key] = value
	m.mu.Unlock()

	m.subs.notify(key)
	return nil
}

func (m *MemoryStore) Subscribe(fn func(key string)) func() {
	return m.subs.add(fn)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
