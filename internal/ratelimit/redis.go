package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisKey is the key holding the shared window counter.
const DefaultRedisKey = "twinsync:ratelimit:oura"

// Consume one slot if the window has room, starting the window on the first hit.
// The counter never passes ARGV[2]. Returns {count, ttl_ms, allowed}.
var fixedWindowScript = goredis.NewScript(`
local c = tonumber(redis.call("GET", KEYS[1]) or "0")
if c >= tonumber(ARGV[2]) then
  return {c, redis.call("PTTL", KEYS[1]), 0}
end
c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {c, redis.call("PTTL", KEYS[1]), 1}
`)

// RedisLimiter shares one fixed window across processes. Redis failures reject the call.
type RedisLimiter struct {
	rdb      goredis.UniversalClient
	key      string
	capacity int
	window   time.Duration
	log      zerolog.Logger
}

func NewRedisLimiter(rdb goredis.UniversalClient, key string, capacity int, window time.Duration, log zerolog.Logger) *RedisLimiter {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisLimiter{
		rdb:      rdb,
		key:      key,
		capacity: capacity,
		window:   window,
		log:      log.With().Str("component", "ratelimit").Logger(),
	}
}

func (l *RedisLimiter) CheckAndConsume(ctx context.Context) bool {
	allowed, err := l.consume(ctx)
	if err != nil {
		l.log.Error().Err(err).Msg("redis limiter unavailable, rejecting call")
		return false
	}
	return allowed
}

func (l *RedisLimiter) consume(ctx context.Context) (bool, error) {
	res, err := fixedWindowScript.Run(ctx, l.rdb, []string{l.key}, l.window.Milliseconds(), l.capacity).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit redis eval: %w", err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 3 {
		return false, fmt.Errorf("ratelimit redis eval: unexpected result %T", res)
	}
	allowed, ok := arr[2].(int64)
	if !ok {
		return false, fmt.Errorf("ratelimit redis eval: unexpected result types")
	}
	return allowed == 1, nil
}

func (l *RedisLimiter) Status(ctx context.Context) Status {
	st := Status{Capacity: l.capacity, Remaining: l.capacity}

	count, err := l.rdb.Get(ctx, l.key).Int()
	if err != nil {
		if err != goredis.Nil {
			l.log.Warn().Err(err).Msg("read limiter window")
		}
		return st
	}
	st.Remaining = max(0, l.capacity-count)

	if ttl, err := l.rdb.PTTL(ctx, l.key).Result(); err == nil && ttl > 0 {
		st.ResetAt = time.Now().Add(ttl)
	}
	return st
}
