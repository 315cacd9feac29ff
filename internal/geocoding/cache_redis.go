package geocoding

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisCache is a ResponseCache backed by redis. Errors degrade to cache misses.
type RedisCache struct {
	rc  *redis.Client
	log *logrus.Entry
}

// NewRedisCache wraps an existing client.
func NewRedisCache(rc *redis.Client) *RedisCache {
	return &RedisCache{rc: rc, log: logrus.WithField("component", "redis_cache")}
}

// Get implements ResponseCache.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.rc.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.WithError(err).Warn("redis get failed")
		}
		return nil, false
	}
	return b, true
}

// Set implements ResponseCache.
func (r *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if err := r.rc.Set(ctx, key, val, ttl).Err(); err != nil {
		r.log.WithError(err).Warn("redis set failed")
	}
}
