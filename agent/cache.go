package agent

import (
	"context"
	"sync"
	"time"
)

// Cache is the key/value backend behind a Store. RedisCache is the shared
// implementation; MemoryCache serves a single process.
type Cache[S any] interface {
	Set(ctx context.Context, key string, val S) error
	Get(ctx context.Context, key string) (S, bool, error)
	Del(ctx context.Context, key string) error
}

type memoryEntry[S any] struct {
	val     S
	expires time.Time
}

// MemoryCache expires values ttl after their last Set, like RedisCache does.
// Expired entries are dropped on read and swept on write.
type MemoryCache[S any] struct {
	mu      sync.Mutex
	entries map[string]memoryEntry[S]
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache keeps values for ttl; zero means no expiry.
func NewMemoryCache[S any](ttl time.Duration) *MemoryCache[S] {
	return &MemoryCache[S]{
		entries: map[string]memoryEntry[S]{},
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryCache[S]) Set(ctx context.Context, key string, val S) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	entry := memoryEntry[S]{val: val}
	if m.ttl > 0 {
		entry.expires = now.Add(m.ttl)
		m.sweep(now)
	}
	m.entries[key] = entry
	return nil
}

func (m *MemoryCache[S]) Get(ctx context.Context, key string) (S, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		var zero S
		return zero, false, nil
	}
	if m.expired(entry, m.now()) {
		delete(m.entries, key)
		var zero S
		return zero, false, nil
	}
	return entry.val, true, nil
}

func (m *MemoryCache[S]) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len counts the entries held, expired ones not yet swept included.
func (m *MemoryCache[S]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryCache[S]) expired(entry memoryEntry[S], now time.Time) bool {
	return !entry.expires.IsZero() && !now.Before(entry.expires)
}

func (m *MemoryCache[S]) sweep(now time.Time) {
	for key, entry := range m.entries {
		if m.expired(entry, now) {
			delete(m.entries, key)
		}
	}
}

var _ Cache[State] = (*MemoryCache[State])(nil)
