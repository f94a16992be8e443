package memory

import (
	"context"
	"sync"
	"time"
)

const idempotencyKeyTTL = 24 * time.Hour

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is a map-backed CacheRepository and IdempotencyRepository with
// per-key expiry. Expired entries are dropped lazily on access.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]entry), now: time.Now}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store(key, append([]byte(nil), value...), ttl)
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

func (c *Cache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookup(key); ok {
		return false, nil
	}
	c.store(key, []byte("1"), idempotencyKeyTTL)
	return true, nil
}

func (c *Cache) ReleaseIdempotency(ctx context.Context, key string) error {
	return c.Delete(ctx, key)
}

// lookup returns a live entry. Caller holds c.mu.
func (c *Cache) lookup(key string) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return entry{}, false
	}
	return e, true
}

func (c *Cache) store(key string, value []byte, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
}
