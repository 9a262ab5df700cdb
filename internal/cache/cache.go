// Package cache holds successful authentications in process memory.
//
// Entries use a sliding TTL: every hit pushes the expiry forward by TTL, so an
// entry only disappears after TTL without access. Expired entries are removed
// lazily on Get and eagerly by Sweep / Run. The cache is bounded by MaxEntries;
// inserting a new username into a full cache first drops expired entries and
// then evicts the least recently touched one.
package cache

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultTTL matches the default cacheTime of 180000 ms.
	DefaultTTL = 3 * time.Minute
	// DefaultMaxEntries bounds memory when no limit is configured.
	DefaultMaxEntries = 10000
)

// Credential is the cached result of a successful authentication.
type Credential struct {
	Username      string
	CanonicalName string
	Groups        []string
	ExpiresAt     time.Time
}

type entry struct {
	canonicalName string
	groups        []string
	expiresAt     time.Time
	touched       time.Time
}

// Cache maps username → Credential. It is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMaxEntries sets the size bound. n <= 0 keeps DefaultMaxEntries.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// New creates a Cache. ttl <= 0 falls back to DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the credential for username if present and unexpired. A hit
// extends the expiry to now+TTL. An expired entry is deleted.
func (c *Cache) Get(username string) (Credential, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[username]
	if !ok {
		cacheMissesTotal.Inc()
		return Credential{}, false
	}
	now := c.now()
	if now.After(e.expiresAt) {
		delete(c.entries, username)
		cacheEntries.Set(float64(len(c.entries)))
		cacheMissesTotal.Inc()
		return Credential{}, false
	}

	e.expiresAt = now.Add(c.ttl)
	e.touched = now
	cacheHitsTotal.Inc()
	return Credential{
		Username:      username,
		CanonicalName: e.canonicalName,
		Groups:        append([]string(nil), e.groups...),
		ExpiresAt:     e.expiresAt,
	}, true
}

// Set inserts or replaces the entry for username with expiry now+TTL.
func (c *Cache) Set(username, canonicalName string, groups []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[username]; !exists && len(c.entries) >= c.maxEntries {
		c.purgeExpiredLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}
	c.entries[username] = &entry{
		canonicalName: canonicalName,
		groups:        append([]string(nil), groups...),
		expiresAt:     now.Add(c.ttl),
		touched:       now,
	}
	cacheEntries.Set(float64(len(c.entries)))
}

// Remove deletes the entry for username; no-op if absent.
func (c *Cache) Remove(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, username)
	cacheEntries.Set(float64(len(c.entries)))
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.purgeExpiredLocked(c.now())
	cacheEntries.Set(float64(len(c.entries)))
	return n
}

// Run sweeps every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Cache) purgeExpiredLocked(now time.Time) int {
	n := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		cacheEvictionsTotal.WithLabelValues("expired").Add(float64(n))
	}
	return n
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestKey  string
		oldestTime time.Time
		first      = true
	)
	for k, e := range c.entries {
		if first || e.touched.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.touched
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		cacheEvictionsTotal.WithLabelValues("capacity").Inc()
	}
}
