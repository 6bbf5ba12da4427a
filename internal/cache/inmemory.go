package cache

import (
	"context"
	"strings"
	"time"

	goCache "github.com/patrickmn/go-cache"
)

// DefaultExpiration is the default expiration time for cache entries
const DefaultExpiration = 30 * time.Minute

// DefaultCleanupInterval is how often expired items are removed from the cache
const DefaultCleanupInterval = 1 * time.Hour

// InMemoryCache implements the Cache interface using github.com/patrickmn/go-cache
type InMemoryCache struct {
	cache   *goCache.Cache
	enabled bool
}

// Global cache instance
var globalCache *InMemoryCache

// InitializeInMemoryCache initializes the global cache instance
func InitializeInMemoryCache() {
	if globalCache == nil {
		globalCache = &InMemoryCache{
			cache:   goCache.New(DefaultExpiration, DefaultCleanupInterval),
			enabled: true,
		}
	}
}

// NewInMemoryCache creates a new InMemoryCache instance
func NewInMemoryCache() Cache {
	if globalCache == nil {
		InitializeInMemoryCache()
	}
	return globalCache
}

// GetInMemoryCache returns the global cache instance
func GetInMemoryCache() *InMemoryCache {
	if globalCache == nil {
		InitializeInMemoryCache()
	}
	return globalCache
}

// SetEnabled toggles the cache at runtime
func (c *InMemoryCache) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// Get retrieves a value from the cache
func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, bool) {
	if !c.enabled {
		return nil, false
	}

	span := StartCacheSpan(ctx, "inmemory", "get", map[string]interface{}{"key": key})
	defer FinishSpan(span)

	return c.cache.Get(key)
}

// Set adds a value to the cache with the specified expiration
func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) {
	if !c.enabled {
		return
	}

	span := StartCacheSpan(ctx, "inmemory", "set", map[string]interface{}{"key": key})
	defer FinishSpan(span)

	c.cache.Set(key, value, expiration)
}

// Delete removes a key from the cache
func (c *InMemoryCache) Delete(ctx context.Context, key string) {
	if !c.enabled {
		return
	}
	c.cache.Delete(key)
}

// DeleteByPrefix removes all keys with the given prefix
func (c *InMemoryCache) DeleteByPrefix(ctx context.Context, prefix string) {
	if !c.enabled {
		return
	}

	items := c.cache.Items()

	for k := range items {
		if strings.HasPrefix(k, prefix) {
			c.cache.Delete(k)
		}
	}
}

// Flush removes all items from the cache
func (c *InMemoryCache) Flush(ctx context.Context) {
	if !c.enabled {
		return
	}
	c.cache.Flush()
}
