package contextbuilder

import (
	"sync"
	"time"

	"github.com/ChamsBouzaiene/agentcli/internal/tools/analysis"
)

// DefaultCacheTTL is how long a summary stays cached.
const DefaultCacheTTL = time.Hour

type cacheEntry struct {
	modTime time.Time
	stored  time.Time
	summary *analysis.Summary
}

// CacheStats reports summary cache usage.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Evicted int64 `json:"evicted"`
}

// summaryCache is a read-through cache of file summaries keyed by
// (path, mtime). A changed mtime is a miss.
type summaryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
	stats   CacheStats
}

func newSummaryCache(ttl time.Duration, now func() time.Time) *summaryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &summaryCache{entries: make(map[string]cacheEntry), ttl: ttl, now: now}
}

func (c *summaryCache) get(path string, modTime time.Time) (*analysis.Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok || !e.modTime.Equal(modTime) || c.now().Sub(e.stored) > c.ttl {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.summary, true
}

func (c *summaryCache) put(path string, modTime time.Time, s *analysis.Summary) {
	c.mu.Lock()
	c.entries[path] = cacheEntry{modTime: modTime, stored: c.now(), summary: s}
	c.mu.Unlock()
}

func (c *summaryCache) invalidate(paths ...string) {
	c.mu.Lock()
	for _, p := range paths {
		delete(c.entries, p)
	}
	c.mu.Unlock()
}

// evict drops entries older than the TTL and returns how many went.
func (c *summaryCache) evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for p, e := range c.entries {
		if now.Sub(e.stored) > c.ttl {
			delete(c.entries, p)
			n++
		}
	}
	c.stats.Evicted += int64(n)
	return n
}

func (c *summaryCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *summaryCache) snapshot() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}
