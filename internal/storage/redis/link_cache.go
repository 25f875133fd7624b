package redis

import (
	"context"
	"errors"
	"strings"
	"time"
)

// LinkCache keeps the key-to-destination mapping hot so redirects can skip
// the database on repeat hits. Misses and redis failures both fall through
// to storage; edits and deletes invalidate the entry.
type LinkCache struct {
	client *Client
	ttl    time.Duration
}

func NewLinkCache(client *Client, ttl time.Duration) *LinkCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &LinkCache{client: client, ttl: ttl}
}

// Destination returns the cached destination for a key, or ok=false on a
// miss or any redis error.
func (c *LinkCache) Destination(ctx context.Context, key string) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	value, err := c.client.Get(ctx, cacheKey(key))
	if err != nil {
		return "", false
	}
	return value, true
}

func (c *LinkCache) Store(ctx context.Context, key, destination string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if strings.TrimSpace(destination) == "" {
		return errors.New("destination must not be empty")
	}
	ttlSeconds := int64(c.ttl / time.Second)
	return c.client.SetEx(ctx, cacheKey(key), destination, ttlSeconds)
}

func (c *LinkCache) Invalidate(ctx context.Context, key string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(key))
}

func cacheKey(key string) string {
	return "link:dest:" + key
}
