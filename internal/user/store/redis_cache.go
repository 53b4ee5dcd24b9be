package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCountTTL = 30 * time.Second

// RedisCountCache stores page totals under a generation number. Invalidate
// bumps the generation, which orphans every earlier entry until its TTL runs
// out.
type RedisCountCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisCountCache(client redis.Cmdable, ttl time.Duration) *RedisCountCache {
	if ttl <= 0 {
		ttl = defaultCountTTL
	}
	return &RedisCountCache{client: client, prefix: "users:count", ttl: ttl}
}

// Get reads an entry by a key from Key.
func (c *RedisCountCache) Get(ctx context.Context, key string) (int, bool, error) {
	n, err := c.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read count cache: %w", err)
	}
	return n, true, nil
}

// Set writes an entry under a key from Key. An Invalidate since the key was
// resolved leaves the entry orphaned.
func (c *RedisCountCache) Set(ctx context.Context, key string, n int) error {
	if err := c.client.Set(ctx, key, n, c.ttl).Err(); err != nil {
		return fmt.Errorf("write count cache: %w", err)
	}
	return nil
}

func (c *RedisCountCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.genKey()).Err(); err != nil {
		return fmt.Errorf("bump count cache generation: %w", err)
	}
	return nil
}

func (c *RedisCountCache) genKey() string {
	return c.prefix + ":gen"
}

// Key binds fingerprint to the current generation.
func (c *RedisCountCache) Key(ctx context.Context, fingerprint string) (string, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("read count cache generation: %w", err)
	}
	sum := sha256.Sum256([]byte(fingerprint))
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, hex.EncodeToString(sum[:16])), nil
}
