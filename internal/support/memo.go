package support

import (
	"sync"
	"time"
)

type memoEntry[V any] struct {
	value    V
	storedAt time.Time
}

// Memo is a small TTL map, used to remember provider maximum amounts.
type Memo[K comparable, V any] struct {
	ttl time.Duration
	now Clock

	mu      sync.Mutex
	entries map[K]memoEntry[V]
}

func NewMemo[K comparable, V any](ttl time.Duration, now Clock) *Memo[K, V] {
	if now == nil {
		now = time.Now
	}
	return &Memo[K, V]{ttl: ttl, now: now, entries: make(map[K]memoEntry[V])}
}

func (m *Memo[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || m.now().Sub(entry.storedAt) >= m.ttl {
		delete(m.entries, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (m *Memo[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoEntry[V]{value: value, storedAt: m.now()}
}
