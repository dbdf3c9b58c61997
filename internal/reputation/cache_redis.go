package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"

	"casguard/internal/model"
)

// RedisCache shares reputation answers between bot instances through redis,
// with a small local cache in front.
type RedisCache struct {
	data *cache.Cache
	ttl  time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache connects to redisURL and checks the connection.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	data := cache.New(&cache.Options{
		Redis:      rdb,
		LocalCache: cache.NewTinyLFU(10_000, time.Minute),
	})
	return &RedisCache{data: data, ttl: ttl}, nil
}

func redisKey(chatID, accountID int64) string {
	return fmt.Sprintf("casguard/reputation/%d/%d", chatID, accountID)
}

func (c *RedisCache) LookupReputation(ctx context.Context, chatID, accountID int64) (model.ReputationEntry, bool, error) {
	var e model.ReputationEntry
	err := c.data.Get(ctx, redisKey(chatID, accountID), &e)
	if errors.Is(err, cache.ErrCacheMiss) {
		return model.ReputationEntry{}, false, nil
	}
	if err != nil {
		return model.ReputationEntry{}, false, fmt.Errorf("get reputation: %w", err)
	}
	return e, true, nil
}

func (c *RedisCache) StoreReputation(ctx context.Context, chatID, accountID int64, banned bool, at time.Time) error {
	key := redisKey(chatID, accountID)
	// the local TinyLFU keeps the first value stored under a key
	c.data.DeleteFromLocalCache(key)
	err := c.data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: model.ReputationEntry{CheckedAt: at, Banned: banned},
		TTL:   c.ttl,
	})
	if err != nil {
		return fmt.Errorf("set reputation: %w", err)
	}
	return nil
}
