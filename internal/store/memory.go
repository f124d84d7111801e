package store

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process KeyValueStore used by the one-shot CLI and tests.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

var (
	_ ProviderStore = (*Memory)(nil)
	_ Creator       = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

func (m *Memory) GetItem(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *Memory) SetItem(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *Memory) SetIfAbsent(_ context.Context, key, value string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.items[key]; ok && existing != "" {
		return existing, nil
	}
	m.items[key] = value
	return value, nil
}

func (m *Memory) DeleteItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; !ok {
		return ErrNotFound
	}
	delete(m.items, key)
	return nil
}

func (m *Memory) ListItems(_ context.Context, provider string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := provider + scopeSeparator
	out := make(map[string]string)
	for k, v := range m.items {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out, nil
}
