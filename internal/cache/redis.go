package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSON wraps Redis helpers for JSON payloads.
type JSON struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewJSON constructs a JSON cache. Keys are stored under prefix.
func NewJSON(client *redis.Client, prefix string, ttl time.Duration) *JSON {
	return &JSON{client: client, ttl: ttl, prefix: prefix}
}

func (c *JSON) redisKey(key Key) string {
	if c.prefix == "" {
		return key.String()
	}
	return c.prefix + ":" + key.String()
}

// Get unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *JSON) Get(ctx context.Context, key Key, dst any) (bool, error) {
	if c == nil || c.client == nil || key.ID == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set serialises v as JSON and stores it with the configured TTL.
func (c *JSON) Set(ctx context.Context, key Key, v any) error {
	if c == nil || c.client == nil || key.ID == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.redisKey(key), data, c.ttl).Err()
}

// Invalidate deletes the provided keys.
func (c *JSON) Invalidate(ctx context.Context, keys ...Key) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	rk := make([]string, 0, len(keys))
	for _, k := range keys {
		rk = append(rk, c.redisKey(k))
	}
	return c.client.Del(ctx, rk...).Err()
}
