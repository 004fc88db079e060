package data

import (
	"sort"
	"strings"
	"sync"
)

// Cache maps canonical paths to decoded values. It is a best-effort mirror
// of the backend and starts empty.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]any
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]any)}
}

func (c *Cache) Has(path string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[path]
	return ok
}

func (c *Cache) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[path]
	return v, ok
}

// Set stores v at path. It always succeeds.
func (c *Cache) Set(path string, v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = v
	return true
}

// Delete reports whether an entry was present.
func (c *Cache) Delete(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[path]; !ok {
		return false
	}
	delete(c.entries, path)
	return true
}

// List visits every entry whose path starts with dir. The visitor runs
// outside the lock and may call back into the cache.
func (c *Cache) List(dir string, visit func(path string, v any)) bool {
	type entry struct {
		path string
		v    any
	}
	c.mu.RLock()
	var matched []entry
	for p, v := range c.entries {
		if strings.HasPrefix(p, dir) {
			matched = append(matched, entry{p, v})
		}
	}
	c.mu.RUnlock()

	for _, e := range matched {
		visit(e.path, e.v)
	}
	return true
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]any)
}

// Paths returns the cached paths in sorted order.
func (c *Cache) Paths() []string {
	c.mu.RLock()
	paths := make([]string, 0, len(c.entries))
	for p := range c.entries {
		paths = append(paths, p)
	}
	c.mu.RUnlock()
	sort.Strings(paths)
	return paths
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// restore puts back a previous state for path: prev when existed, absent otherwise.
func (c *Cache) restore(path string, prev any, existed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existed {
		c.entries[path] = prev
		return
	}
	delete(c.entries, path)
}
