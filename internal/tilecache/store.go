// Package tilecache keeps rendered tiles in a bounded LRU cache: a
// persistent store (memory, Redis or Postgres) behind a volatile
// ristretto layer.
package tilecache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Entry is one cached tile.
type Entry struct {
	Bytes        []byte
	LastAccessed time.Time
}

// Store is the persistent half of the cache. Get returns (nil, nil) on a miss.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, e Entry) error
	// Touch updates LastAccessed and reports whether the key exists.
	Touch(ctx context.Context, key string, at time.Time) (bool, error)
	Delete(ctx context.Context, key string) error
	Count(ctx context.Context) (int, error)
	// Oldest returns up to n keys, least recently accessed first.
	Oldest(ctx context.Context, n int) ([]string, error)
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &Entry{Bytes: e.Bytes, LastAccessed: e.LastAccessed}, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

func (m *MemoryStore) Touch(_ context.Context, key string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	e.LastAccessed = at
	m.entries[key] = e
	return true, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

func (m *MemoryStore) Oldest(_ context.Context, n int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := m.entries[keys[i]].LastAccessed, m.entries[keys[j]].LastAccessed
		if !a.Equal(b) {
			return a.Before(b)
		}
		return keys[i] < keys[j]
	})
	if n < len(keys) {
		keys = keys[:max(n, 0)]
	}
	return keys, nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
	return nil
}
