// Package usecase contains application business logic.
package usecase

import (
	"sync"

	"github.com/deepakjacob/launchk/internal/domain"
)

// EntryCache memoizes resolved entries by label. Construct one per
// process (or per test) and hand it to the Resolver.
type EntryCache struct {
	mu      sync.Mutex
	entries map[string]domain.EntryInfo
}

// NewEntryCache creates an empty cache.
func NewEntryCache() *EntryCache {
	return &EntryCache{entries: make(map[string]domain.EntryInfo)}
}

// Get returns the cached entry for label.
func (c *EntryCache) Get(label string) (domain.EntryInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.entries[label]
	return info, ok
}

// Put stores info for label, replacing any previous value.
func (c *EntryCache) Put(label string, info domain.EntryInfo) {
	c.mu.Lock()
	c.entries[label] = info
	c.mu.Unlock()
}

// Invalidate drops label so the next Resolve probes again.
func (c *EntryCache) Invalidate(label string) {
	c.mu.Lock()
	delete(c.entries, label)
	c.mu.Unlock()
}

// Len returns the number of cached labels.
func (c *EntryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
