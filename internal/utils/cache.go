package utils

import (
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheItem wraps a cached value with its expiry.
type CacheItem struct {
	Data      interface{}
	ExpiresAt time.Time
}

// GlobalCache is a small TTL wrapper around an LRU cache. Its main consumer
// is the storage service, which caches signed download URLs so a hot feed
// page does not re-mint a URL per request.
type GlobalCache struct {
	lruCache *lru.Cache[string, CacheItem]
}

var (
	cacheInstance *GlobalCache
	cacheOnce     sync.Once
)

// GetCache returns the singleton cache instance.
func GetCache() *GlobalCache {
	cacheOnce.Do(func() {
		l, err := lru.New[string, CacheItem](500)
		if err != nil {
			log.Fatalf("Failed to create LRU cache: %v", err)
		}
		cacheInstance = &GlobalCache{lruCache: l}
	})
	return cacheInstance
}

// Set stores a value with the given TTL.
func (c *GlobalCache) Set(key string, data interface{}, ttl time.Duration) {
	c.lruCache.Add(key, CacheItem{
		Data:      data,
		ExpiresAt: time.Now().Add(ttl),
	})
}

// Get returns the cached value, or nil if absent or expired.
func (c *GlobalCache) Get(key string) interface{} {
	val, ok := c.lruCache.Get(key)
	if !ok {
		return nil
	}
	if time.Now().After(val.ExpiresAt) {
		c.lruCache.Remove(key)
		return nil
	}
	return val.Data
}

// Delete removes a key.
func (c *GlobalCache) Delete(key string) {
	c.lruCache.Remove(key)
}
