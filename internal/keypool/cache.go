package keypool

import (
	"sync"
	"time"
)

// DefaultCacheTTL is the freshness window for cached balances.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	balance   int
	checkedAt time.Time
}

// CreditCache remembers the last observed credit balance per secret.
// Entries older than the TTL are treated as absent. It is never persisted.
type CreditCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// CacheOption customizes a CreditCache.
type CacheOption func(*CreditCache)

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *CreditCache) {
		c.now = now
	}
}

// NewCreditCache creates an empty cache. A non-positive ttl selects
// DefaultCacheTTL.
func NewCreditCache(ttl time.Duration, opts ...CacheOption) *CreditCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &CreditCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached balance and whether it is still fresh.
func (c *CreditCache) Get(secret string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[secret]
	if !ok {
		return 0, false
	}
	if c.now().Sub(entry.checkedAt) >= c.ttl {
		delete(c.entries, secret)
		return 0, false
	}
	return entry.balance, true
}

// Set records a balance just obtained from the oracle.
func (c *CreditCache) Set(secret string, balance int) {
	if balance < 0 {
		balance = 0
	}
	c.mu.Lock()
	c.entries[secret] = cacheEntry{balance: balance, checkedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate drops the entry for secret so the next Get misses.
func (c *CreditCache) Invalidate(secret string) {
	c.mu.Lock()
	delete(c.entries, secret)
	c.mu.Unlock()
}

// Debit lowers a cached balance after a submission, never below zero. It
// does not extend the entry's freshness and is a no-op on a miss.
func (c *CreditCache) Debit(secret string, amount int) {
	if amount <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[secret]
	if !ok {
		return
	}
	entry.balance -= amount
	if entry.balance < 0 {
		entry.balance = 0
	}
	c.entries[secret] = entry
}

// Len returns the number of entries, fresh or not.
func (c *CreditCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
