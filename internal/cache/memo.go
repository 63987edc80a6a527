package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Memo caches the result of a keyed lookup for a fixed TTL. Concurrent
// misses for the same key share one call. Errors are never cached.
type Memo[T any] struct {
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]memoEntry[T]
}

type memoEntry[T any] struct {
	value   T
	expires time.Time
}

// NewMemo returns a memo whose entries live for ttl. A ttl of zero disables
// caching; every Get calls through.
func NewMemo[T any](ttl time.Duration) *Memo[T] {
	return &Memo[T]{ttl: ttl, now: time.Now, entries: make(map[string]memoEntry[T])}
}

// Get returns the cached value for key or calls load to produce it.
func (m *Memo[T]) Get(key string, load func() (T, error)) (T, error) {
	if v, ok := m.lookup(key); ok {
		return v, nil
	}
	v, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.lookup(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return v, err
		}
		if m.ttl > 0 {
			m.mu.Lock()
			m.entries[key] = memoEntry[T]{value: v, expires: m.now().Add(m.ttl)}
			m.mu.Unlock()
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Forget drops key so the next Get reloads it.
func (m *Memo[T]) Forget(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Reset drops every entry.
func (m *Memo[T]) Reset() {
	m.mu.Lock()
	clear(m.entries)
	m.mu.Unlock()
}

func (m *Memo[T]) lookup(key string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		var zero T
		return zero, false
	}
	return e.value, true
}
