package matcher

import (
	"sync"
	"time"

	"gitlab.com/auditker/auditk"
)

// sweepThreshold entries before an insert triggers removal of expired entries
const sweepThreshold = 100

type matchKey struct {
	path string
	url  string
}

type entry struct {
	value   bool
	expires time.Time
}

// Observer is told about cache hits and misses
type Observer interface {
	CacheHit(cache string)
	CacheMiss(cache string)
}

// Cache memoizes match and scanned lookups. Entries expire by time only,
// writes to the watch list do not invalidate them.
type Cache struct {
	mu         sync.Mutex
	matches    map[matchKey]entry
	scanned    map[string]entry
	matchTTL   time.Duration
	scannedTTL time.Duration
	observer   Observer
	now        func() time.Time
}

// NewCache with the given time to live for match and scanned results
func NewCache(matchTTL, scannedTTL time.Duration) *Cache {
	if matchTTL <= 0 {
		matchTTL = auditk.DefaultMatchTTL
	}
	if scannedTTL <= 0 {
		scannedTTL = auditk.DefaultScannedTTL
	}
	return &Cache{
		matches:    make(map[matchKey]entry),
		scanned:    make(map[string]entry),
		matchTTL:   matchTTL,
		scannedTTL: scannedTTL,
		now:        time.Now,
	}
}

// SetObserver for hit/miss accounting
func (c *Cache) SetObserver(o Observer) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

// SetClock replaces the time source
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// CachedMatch returns the cached result for (path, fullURL without query),
// calling compute on a miss. compute runs without the lock held.
func (c *Cache) CachedMatch(path, fullURL string, compute func() bool) bool {
	key := matchKey{path: path, url: auditk.TrimQuery(fullURL)}

	c.mu.Lock()
	now := c.now()
	if e, ok := c.matches[key]; ok && now.Before(e.expires) {
		c.notify("match", true)
		c.mu.Unlock()
		return e.value
	}
	c.notify("match", false)
	c.mu.Unlock()

	value := compute()

	c.mu.Lock()
	if len(c.matches) >= sweepThreshold {
		sweepMatches(c.matches, now)
	}
	c.matches[key] = entry{value: value, expires: now.Add(c.matchTTL)}
	c.mu.Unlock()
	return value
}

// CachedIsScanned returns the cached scanned status of path, calling compute
// on a miss
func (c *Cache) CachedIsScanned(path string, compute func() bool) bool {
	c.mu.Lock()
	now := c.now()
	if e, ok := c.scanned[path]; ok && now.Before(e.expires) {
		c.notify("scanned", true)
		c.mu.Unlock()
		return e.value
	}
	c.notify("scanned", false)
	c.mu.Unlock()

	value := compute()

	c.mu.Lock()
	if len(c.scanned) >= sweepThreshold {
		sweepScanned(c.scanned, now)
	}
	c.scanned[path] = entry{value: value, expires: now.Add(c.scannedTTL)}
	c.mu.Unlock()
	return value
}

// Len of the match and scanned caches
func (c *Cache) Len() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.matches), len(c.scanned)
}

// Reset drops every entry
func (c *Cache) Reset() {
	c.mu.Lock()
	c.matches = make(map[matchKey]entry)
	c.scanned = make(map[string]entry)
	c.mu.Unlock()
}

func (c *Cache) notify(cache string, hit bool) {
	if c.observer == nil {
		return
	}
	if hit {
		c.observer.CacheHit(cache)
		return
	}
	c.observer.CacheMiss(cache)
}

func sweepMatches(m map[matchKey]entry, now time.Time) {
	for k, e := range m {
		if !now.Before(e.expires) {
			delete(m, k)
		}
	}
}

func sweepScanned(m map[string]entry, now time.Time) {
	for k, e := range m {
		if !now.Before(e.expires) {
			delete(m, k)
		}
	}
}
