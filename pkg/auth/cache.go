package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rmax-ai/proximl/pkg/client"
)

// Cache stores tokens between exchanges. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (client.Tokens, bool, error)
	Set(ctx context.Context, key string, tokens client.Tokens, ttl time.Duration) error
}

type memoryEntry struct {
	tokens  client.Tokens
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements Cache.
func (m *MemoryCache) Get(ctx context.Context, key string) (client.Tokens, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return client.Tokens{}, false, nil
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.entries, key)
		return client.Tokens{}, false, nil
	}
	return e.tokens, true, nil
}

// Set implements Cache. A zero ttl keeps the entry until replaced.
func (m *MemoryCache) Set(ctx context.Context, key string, tokens client.Tokens, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.entries[key] = memoryEntry{tokens: tokens, expires: expires}
	return nil
}
