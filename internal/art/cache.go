package art

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// CacheKey fingerprints a search: sha256 of the normalized query plus the
// exact page window.
func CacheKey(query string, limit, offset int) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%d", strings.ToLower(strings.TrimSpace(query)), limit, offset))
	return hex.EncodeToString(h[:])
}

// SearchCache stores finished federated pages. Implementations expire
// entries after the configured TTL.
type SearchCache interface {
	Get(ctx context.Context, key string) (*SearchResult, bool)
	Set(ctx context.Context, key string, result *SearchResult)
}

// MemoryCache is the default backend: a bounded expirable LRU.
type MemoryCache struct {
	lru *expirable.LRU[string, *SearchResult]
}

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, *SearchResult](size, nil, ttl)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*SearchResult, bool) {
	return c.lru.Get(key)
}

func (c *MemoryCache) Set(ctx context.Context, key string, result *SearchResult) {
	c.lru.Add(key, result)
}

// RedisCache shares the search cache between instances. Failures degrade to
// cache misses; the federator never depends on Redis availability.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*SearchResult, bool) {
	raw, err := c.client.Get(ctx, "artsearch:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	var res SearchResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false
	}
	return &res, true
}

func (c *RedisCache) Set(ctx context.Context, key string, result *SearchResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.client.Set(ctx, "artsearch:"+key, raw, c.ttl)
}
