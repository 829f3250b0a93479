// internal/cache/redis.go
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	externalIDPrefix = "extid:"
	externalIDTTL    = 24 * time.Hour
)

// RedisCache maps provider email ids to internal email ids. The send worker
// writes entries as sends complete; the webhook resolver reads them as a
// fast path before hitting the store.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) StoreEmailID(ctx context.Context, providerID, emailID string) error {
	return c.client.Set(ctx, externalIDPrefix+providerID, emailID, externalIDTTL).Err()
}

// GetEmailID returns "" on a miss, never an error for an absent key.
func (c *RedisCache) GetEmailID(ctx context.Context, providerID string) (string, error) {
	val, err := c.client.Get(ctx, externalIDPrefix+providerID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
