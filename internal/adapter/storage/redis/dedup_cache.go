package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DedupCache implements ports.DedupCache using Redis. It front-runs the
// database unique index for webhook redelivery: a hit skips the insert
// attempt entirely, a miss or Redis outage falls through to the DB which
// remains the source of truth.
type DedupCache struct {
	client *goredis.Client
	prefix string
}

// NewDedupCache creates a new Redis-backed dedup cache.
func NewDedupCache(client *goredis.Client) *DedupCache {
	return &DedupCache{
		client: client,
		prefix: "dedup:",
	}
}

// Seen reports whether the key was marked before. Returns false, nil on a
// missing key.
func (c *DedupCache) Seen(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis dedup exists: %w", err)
	}
	return n > 0, nil
}

// Mark records the key with a TTL.
func (c *DedupCache) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis dedup set: %w", err)
	}
	return nil
}
