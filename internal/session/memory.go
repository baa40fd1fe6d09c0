package session

import (
	"context"
	"sync"
)

// MemoryKV keeps client storage in process memory.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryKV creates a store seeded with values.
func NewMemoryKV(values map[string]string) *MemoryKV {
	kv := &MemoryKV{values: make(map[string]string, len(values))}
	for k, v := range values {
		kv.values[k] = v
	}
	return kv
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

func (m *MemoryKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryKV) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

func (m *MemoryKV) Ping(ctx context.Context) error {
	return nil
}
