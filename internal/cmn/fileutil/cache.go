package fileutil

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cacheEntry pairs decoded data with the file metadata it was decoded from,
// so staleness is detected by size and modification time.
type cacheEntry[T any] struct {
	data    T
	size    int64
	modTime int64
}

// Cache memoizes values decoded from files. Entries expire on TTL and are
// re-decoded when the backing file changes.
type Cache[T any] struct {
	lru *expirable.LRU[string, cacheEntry[T]]
}

// NewCache creates a cache holding up to capacity entries for at most ttl.
// Zero capacity means unbounded.
func NewCache[T any](capacity int, ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		lru: expirable.NewLRU[string, cacheEntry[T]](capacity, nil, ttl),
	}
}

// Load returns the cached value for path, re-decoding through loader when
// the entry is missing, expired, or stale relative to the file on disk.
func (c *Cache[T]) Load(path string, loader func() (T, error)) (T, error) {
	var zero T
	fi, err := os.Stat(path)
	if err != nil {
		return zero, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if e, ok := c.lru.Get(path); ok &&
		e.size == fi.Size() && e.modTime >= fi.ModTime().Unix() {
		return e.data, nil
	}

	data, err := loader()
	if err != nil {
		return zero, err
	}
	c.lru.Add(path, cacheEntry[T]{
		data:    data,
		size:    fi.Size(),
		modTime: fi.ModTime().Unix(),
	})
	return data, nil
}

// Invalidate drops the entry for path.
func (c *Cache[T]) Invalidate(path string) {
	c.lru.Remove(path)
}

// Len returns the number of cached entries.
func (c *Cache[T]) Len() int {
	return c.lru.Len()
}
