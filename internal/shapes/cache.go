package shapes

import (
	"strings"
	"sync"
)

type cacheKey struct {
	kind          string
	width, height float64
}

// Cache memoizes outlines by kind and size. Returned paths are shared and
// must not be modified.
type Cache struct {
	mu    sync.RWMutex
	paths map[cacheKey]Path
}

// NewCache creates an empty outline cache
func NewCache() *Cache {
	return &Cache{paths: make(map[cacheKey]Path)}
}

// Outline returns the cached outline, resolving it on first use
func (c *Cache) Outline(kind string, width, height float64) Path {
	key := cacheKey{kind: strings.ToLower(strings.TrimSpace(kind)), width: width, height: height}

	c.mu.RLock()
	path, ok := c.paths[key]
	c.mu.RUnlock()
	if ok {
		return path
	}

	path = Outline(kind, width, height).Cubics()

	c.mu.Lock()
	c.paths[key] = path
	c.mu.Unlock()

	return path
}

// Len returns the number of cached outlines
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.paths)
}
