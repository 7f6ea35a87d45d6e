package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript mirrors Limiter.Check: the first hit opens the window,
// hits at the limit are refused without being counted.
var fixedWindowScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[1])
  return {1, 1, tonumber(ARGV[1])}
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
current = tonumber(current)
if current >= tonumber(ARGV[2]) then
  return {0, current, ttl}
end
local n = redis.call('INCR', KEYS[1])
return {1, n, ttl}
`)

type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, p Policy) (Result, error) {
	p = p.withDefaults()
	now := l.now()
	raw, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + ":" + key}, p.Window.Milliseconds(), p.MaxRequests).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("redis fixed window: %w", err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("redis fixed window: unexpected reply %v", raw)
	}
	res := Result{
		Limit:   p.MaxRequests,
		ResetAt: now.Add(time.Duration(raw[2]) * time.Millisecond),
	}
	if raw[0] == 1 {
		res.Allowed = true
		res.Remaining = p.MaxRequests - int(raw[1])
	}
	return res, nil
}
