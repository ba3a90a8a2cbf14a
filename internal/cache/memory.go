package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a process-local cache. It is the default for tests and
// for one-shot CLI invocations that do not want files on disk.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	opts    Options
	now     func() time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(opts Options) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]Entry),
		opts:    opts.withDefaults(),
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}

	if m.now().After(e.ExpiresAt.Add(m.opts.StaleTTL)) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, etag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.entries[key] = Entry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		ETag:      etag,
		ExpiresAt: m.now().Add(m.opts.TTL),
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) ETag(ctx context.Context, key string) (string, error) {
	e, ok, err := m.Get(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	return e.ETag, nil
}

func (m *MemoryCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.entries = make(map[string]Entry)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, fresh or stale.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
