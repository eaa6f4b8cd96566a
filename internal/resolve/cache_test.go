package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryCache(5*time.Minute, WithCacheClock(clock.Now))

	c.Set("k", []Candidate{cand("A", "Acme")})
	got, ok := c.Get("k")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].ID)

	_, ok = c.Get("other")
	assert.False(t, ok)
}

func TestMemoryCache_ExpiresLazily(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryCache(5*time.Minute, WithCacheClock(clock.Now))

	c.Set("k", []Candidate{cand("A", "Acme")})
	clock.Advance(4*time.Minute + 59*time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	assert.Equal(t, 1, c.Len(), "no sweep before lookup")
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "stale entry evicted on lookup")
}

func TestMemoryCache_Expire(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	c.Set("k", nil)
	_, ok := c.Get("k")
	assert.True(t, ok, "empty results are cacheable")

	c.Expire("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCache_ReturnsCopy(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	c.Set("k", []Candidate{cand("A", "Acme")})

	got, _ := c.Get("k")
	got[0].ID = "mutated"

	again, _ := c.Get("k")
	assert.Equal(t, "A", again[0].ID)
}

func TestNewMemoryCache_DefaultTTL(t *testing.T) {
	c := NewMemoryCache(0)
	assert.Equal(t, DefaultCacheTTL, c.ttl)
}

func TestCacheKey(t *testing.T) {
	a := CacheKey(Query{SubjectName: "Acme, Inc.", StateHint: "ca", DomainHint: "Acme.com"})
	b := CacheKey(Query{SubjectName: "ACME", StateHint: " CA ", DomainHint: "acme.com"})
	assert.Equal(t, a, b)

	c := CacheKey(Query{SubjectName: "Acme", StateHint: "NV", DomainHint: "acme.com"})
	assert.NotEqual(t, a, c)
}
