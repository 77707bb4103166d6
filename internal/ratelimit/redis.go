package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// reserveScript stores the next free slot (unix ms) per key and returns the
// slot granted to this caller.
const reserveScript = `
local now = tonumber(ARGV[1])
local delay = tonumber(ARGV[2])
local slot = tonumber(redis.call('GET', KEYS[1]) or '0')
if slot < now then
	slot = now
end
redis.call('SET', KEYS[1], slot + delay, 'PX', slot + delay - now + 1000)
return slot
`

// Evaler is the part of a Redis client the shared limiter needs.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLimiter shares vendor schedules between processes through Redis.
type RedisLimiter struct {
	client Evaler
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client Evaler, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit:vendor:"
	}
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisLimiter) Wait(ctx context.Context, key string, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := l.now().UnixMilli()
	slot, err := l.client.Eval(ctx, reserveScript, []string{l.prefix + key}, now, delay.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to reserve rate limit slot for %s: %w", key, err)
	}

	return sleep(ctx, time.Duration(slot-now)*time.Millisecond)
}
