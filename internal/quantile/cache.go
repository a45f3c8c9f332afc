package quantile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is how long cached break sets stay valid.
const DefaultTTL = 5 * time.Minute

// Entry is a cached break set plus its change token. The token is derived
// from the break values, so repeat callers presenting an unchanged token can
// be answered "not modified" without re-transmitting the payload.
type Entry struct {
	Breaks []float64
	Token  string
}

type cacheSlot struct {
	entry     Entry
	createdAt time.Time
}

// BreaksCache memoizes quantile breaks per bucket count with TTL expiry.
type BreaksCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	slots map[int]cacheSlot
	now   func() time.Time
}

// NewBreaksCache creates a cache with the given TTL (DefaultTTL if zero).
func NewBreaksCache(ttl time.Duration) *BreaksCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BreaksCache{
		ttl:   ttl,
		slots: make(map[int]cacheSlot),
		now:   time.Now,
	}
}

// Get returns the cached entry for k, computing it through load on a miss or
// after expiry. load must return the ascending-sorted source values.
func (c *BreaksCache) Get(k int, load func() ([]float64, error)) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slot, ok := c.slots[k]; ok && c.now().Sub(slot.createdAt) <= c.ttl {
		return slot.entry, nil
	}

	sorted, err := load()
	if err != nil {
		return Entry{}, err
	}
	breaks, err := Breaks(sorted, k)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{Breaks: breaks, Token: Token(breaks)}
	c.slots[k] = cacheSlot{entry: entry, createdAt: c.now()}
	return entry, nil
}

// Invalidate drops every cached break set, e.g. after a new scoring run.
func (c *BreaksCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots = make(map[int]cacheSlot)
}

// Token derives the change token for a break set. Identical breaks always
// produce an identical token.
func Token(breaks []float64) string {
	h := sha256.New()
	for _, b := range breaks {
		fmt.Fprintf(h, "%.9f;", b)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
