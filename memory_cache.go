package universal

import (
	"errors"
	"fmt"
	"sync"

	"github.com/goliatone/go-universal/layering"
)

// ErrInvalidSnapshot reports a snapshot that cannot be restored.
var ErrInvalidSnapshot = errors.New("universal: invalid snapshot")

// InMemoryCache is the default Cache. It stores query results keyed by
// operation key and hands out detached copies on every read, extract and
// restore.
type InMemoryCache struct {
	mu      sync.RWMutex
	records map[string]any
}

// NewInMemoryCache returns an empty cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{records: map[string]any{}}
}

// Read returns a copy of the record stored under key.
func (c *InMemoryCache) Read(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	record, ok := c.records[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return layering.Clone(record), true
}

// Write stores a copy of data under key.
func (c *InMemoryCache) Write(key string, data any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.records == nil {
		c.records = map[string]any{}
	}
	c.records[key] = layering.Clone(data)
	c.mu.Unlock()
}

// Len returns the number of stored records.
func (c *InMemoryCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Extract implements Cache.
func (c *InMemoryCache) Extract() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(Snapshot, len(c.records))
	for key, record := range c.records {
		out[key] = layering.Clone(record)
	}
	return out
}

// Restore implements Cache. Restored records are merged over whatever the
// cache already holds.
func (c *InMemoryCache) Restore(snapshot Snapshot) error {
	if c == nil {
		return fmt.Errorf("%w: nil cache", ErrInvalidSnapshot)
	}
	for key := range snapshot {
		if key == "" {
			return fmt.Errorf("%w: empty record key", ErrInvalidSnapshot)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.records == nil {
		c.records = make(map[string]any, len(snapshot))
	}
	for key, record := range snapshot {
		c.records[key] = layering.Clone(record)
	}
	return nil
}

// Reset drops every record.
func (c *InMemoryCache) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.records = map[string]any{}
	c.mu.Unlock()
}
