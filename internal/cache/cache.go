// Package cache provides a Redis-backed cache used for server-side
// session tracking (§4.8, §4.14). It degrades to a disabled, always-miss
// mode when Redis is unreachable so the module plane's routing and IPC
// paths are never affected by a cache outage.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/modplane/server/internal/logger"
)

// Config describes how to reach Redis.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// Cache wraps a redis.Client. When Enabled is false every operation is a
// no-op that reports a miss, rather than failing callers outright.
type Cache struct {
	client  *redis.Client
	enabled bool
}

// NewCache connects to Redis (when enabled) with a bounded dial timeout
// so an unreachable cache doesn't stall boot.
func NewCache(cfg Config) (*Cache, error) {
	if !cfg.Enabled {
		return &Cache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     25,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return &Cache{client: client, enabled: true}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if !c.enabled {
		return nil
	}
	return c.client.Close()
}

// Enabled reports whether this cache is backed by a live Redis connection.
func (c *Cache) Enabled() bool { return c.enabled }

// Set stores a JSON-serialized value with a TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get deserializes a stored value into dest. It returns (false, nil) on a
// cache miss or when the cache is disabled, never an error for "not found".
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.enabled {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// DeletePattern removes every key matching a glob pattern, used to
// invalidate all sessions at once (e.g. a forced global logout).
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	if !c.enabled {
		return nil
	}
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// NewDisabled returns a cache instance in disabled mode, used when the
// operator has opted out of caching or the initial connection failed and
// the core chooses to continue without one.
func NewDisabled() *Cache {
	logger.Database().Warn().Msg("session cache disabled; logout will not revoke tokens before natural expiry")
	return &Cache{enabled: false}
}
