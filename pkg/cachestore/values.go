package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Alwanly/cachestore/pkg/logger"
)

// key namespaces k with the configured prefix.
func (c *Client) key(k string) string {
	return c.cfg.Prefix + k
}

// Set stores value under key with no expiry.
func (c *Client) Set(ctx context.Context, key string, value any) error {
	if err := c.redis().Set(ctx, c.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

// MSet stores every pair in one round trip, prefixing each key.
func (c *Client) MSet(ctx context.Context, pairs map[string]any) error {
	if len(pairs) == 0 {
		return nil
	}
	prefixed := make(map[string]any, len(pairs))
	for k, v := range pairs {
		prefixed[c.key(k)] = v
	}
	if err := c.redis().MSet(ctx, prefixed).Err(); err != nil {
		return fmt.Errorf("failed to mset %d keys: %w", len(pairs), err)
	}
	return nil
}

// Get fetches the value stored under key. A missing key yields ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.redis().Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, key, err)
		}
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return val, nil
}

// Append appends value to the string stored under key, creating the key if
// it does not exist.
func (c *Client) Append(ctx context.Context, key, value string) error {
	if err := c.redis().Append(ctx, c.key(key), value).Err(); err != nil {
		return fmt.Errorf("failed to append to %q: %w", key, err)
	}
	return nil
}

// Expire sets key's time to live. The store applies expiry with up to
// ExpireAccuracy of slack.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.redis().Expire(ctx, c.key(key), ttl).Err(); err != nil {
		return fmt.Errorf("failed to expire %q: %w", key, err)
	}
	return nil
}

// Delete removes the given keys. Missing keys are not an error.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	if err := c.redis().Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("failed to delete %d keys: %w", len(keys), err)
	}
	return nil
}

// Exists returns how many of the given keys are present, counting duplicate
// arguments per occurrence.
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	n, err := c.redis().Exists(ctx, prefixed...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to check existence of %d keys: %w", len(keys), err)
	}
	return n, nil
}

// Clear deletes every key under the configured prefix. The keyspace is swept
// with cursor scans in pages of Config.ScanCount, and full passes repeat
// until one deletes nothing. No lock is held across the sweep, so keys
// inserted concurrently may survive it.
func (c *Client) Clear(ctx context.Context) error {
	rdb := c.redis()
	pattern := c.cfg.Prefix + "*"

	total := 0
	for {
		deleted := 0
		var cursor uint64
		for {
			keys, next, err := rdb.Scan(ctx, cursor, pattern, c.cfg.ScanCount).Result()
			if err != nil {
				return fmt.Errorf("failed to scan %q: %w", pattern, err)
			}
			if len(keys) > 0 {
				if err := rdb.Del(ctx, keys...).Err(); err != nil {
					return fmt.Errorf("failed to delete scanned keys: %w", err)
				}
				deleted += len(keys)
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		total += deleted
		if deleted == 0 {
			break
		}
	}

	c.log.Debug("cache cleared",
		logger.String(logger.FieldPrefix, c.cfg.Prefix),
		logger.Int("keys_deleted", total),
	)
	return nil
}
