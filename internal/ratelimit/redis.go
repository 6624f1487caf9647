package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter shared across instances, so a
// login flood hitting several replicas still sees one combined limit.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedis(addr string, limit int, window time.Duration) *RedisLimiter {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	windowSecs := int64(l.window.Seconds())
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/windowSecs)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: an unreachable Redis should degrade limiting, not
		// block logins.
		return true, 0, err
	}

	if incr.Val() > int64(l.limit) {
		retryAfter := int(windowSecs - time.Now().Unix()%windowSecs)
		return false, retryAfter, nil
	}

	return true, 0, nil
}

// Ping checks connectivity; wired into readiness when Redis is configured.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
