package storage

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store implementation, suitable for development,
// tests, and single-process deployments. All users are logged out on
// process restart since nothing is persisted to disk.
//
// Grounded on the retrieval corpus's MemStore (atproto/auth/oauth/memstore.go):
// a single mutex-guarded map, generalized here to the full Store contract
// (TTL expiry, multi-get/set, locks) that narrow sketch didn't need.
type Memory struct {
	mu    sync.Mutex
	items map[string]memItem
	locks map[string]time.Time
}

type memItem struct {
	value   string
	expires time.Time // zero means no expiry
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]memItem),
		locks: make(map[string]time.Time),
	}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok || m.expired(item) {
		return "", ErrNotFound
	}
	return item.value, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = m.makeItem(value, ttl)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok || m.expired(item) {
		return false, nil
	}
	return true, nil
}

func (m *Memory) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		item, ok := m.items[k]
		if ok && !m.expired(item) {
			out[k] = item.value
		}
	}
	return out, nil
}

func (m *Memory) MultiSet(ctx context.Context, values map[string]string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.items[k] = m.makeItem(v, ttl)
	}
	return nil
}

func (m *Memory) AcquireLock(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if until, ok := m.locks[key]; ok && time.Now().Before(until) {
		return ErrLockHeld
	}
	m.locks[key] = time.Now().Add(ttl)
	return nil
}

func (m *Memory) ReleaseLock(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

func (m *Memory) expired(item memItem) bool {
	return !item.expires.IsZero() && time.Now().After(item.expires)
}

func (m *Memory) makeItem(value string, ttl time.Duration) memItem {
	item := memItem{value: value}
	if ttl > 0 {
		item.expires = time.Now().Add(ttl)
	}
	return item
}

var _ Store = (*Memory)(nil)
