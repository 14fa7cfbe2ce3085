package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/matchchat/internal/config"
)

// CountTTL bounds how long a cached counter may lag behind the database.
const CountTTL = time.Hour

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// KeyForUnreadNotifications generates the Redis key for a user's unread count.
func KeyForUnreadNotifications(userID uint64) string {
	return fmt.Sprintf("notifications:unread:%d", userID)
}

// SetCount stores a counter and refreshes its TTL.
func (c *RedisCache) SetCount(ctx context.Context, key string, count int64) error {
	return c.Client.Set(ctx, key, count, CountTTL).Err()
}

// GetCount returns (count, true) on hit and (0, false) on miss.
// The TTL is refreshed on access.
func (c *RedisCache) GetCount(ctx context.Context, key string) (int64, bool, error) {
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// corrupt entry, treat as miss
		_ = c.Client.Del(ctx, key).Err()
		return 0, false, nil
	}
	_ = c.Client.Expire(ctx, key, CountTTL).Err()
	return n, true, nil
}

// Invalidate drops cached counters so the next read recomputes them.
func (c *RedisCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.Client.Del(ctx, keys...).Err()
}
