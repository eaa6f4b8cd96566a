package resolve

import (
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL is how long retrieval results stay fresh.
const DefaultCacheTTL = 5 * time.Minute

// CacheKey identifies a retrieval by normalized name and lowercased hints.
func CacheKey(q Query) string {
	return Normalize(q.SubjectName) + "|" +
		strings.ToLower(strings.TrimSpace(q.StateHint)) + "|" +
		strings.ToLower(strings.TrimSpace(q.DomainHint))
}

// ResultCache memoizes retrieval results.
type ResultCache interface {
	Get(key string) ([]Candidate, bool)
	Set(key string, candidates []Candidate)
	Expire(key string)
}

type cacheEntry struct {
	candidates []Candidate
	createdAt  time.Time
}

// MemoryCache is a process-local ResultCache. Stale entries are evicted when
// they are next looked up; there is no background sweep.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// CacheOption configures a MemoryCache.
type CacheOption func(*MemoryCache)

// WithCacheClock overrides the cache's time source.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemoryCache creates a cache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration, opts ...CacheOption) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached candidates for key if they are still fresh.
func (c *MemoryCache) Get(key string) ([]Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.createdAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return append([]Candidate(nil), e.candidates...), true
}

// Set stores candidates under key.
func (c *MemoryCache) Set(key string, candidates []Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		candidates: append([]Candidate(nil), candidates...),
		createdAt:  c.now(),
	}
}

// Expire drops key immediately.
func (c *MemoryCache) Expire(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries held, fresh or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
