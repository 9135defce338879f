package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token bucket en Redis. KEYS[1] guarda {tokens, ts}; ARGV: rate, capacity,
// now_ms. Devuelve 1 si el turno se admite.
const redisTokenBucketScript = `
local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
if tokens == nil then
  tokens = capacity
  ts = now
end
local elapsed = math.max(0, now - ts) / 1000.0
tokens = math.min(capacity, tokens + elapsed * rate)
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call("HMSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("EXPIRE", KEYS[1], 120)
return allowed
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisRateLimiter struct {
	client   redisEvaler
	rate     float64
	capacity int
	prefix   string
}

func NewRedisRateLimiter(client *redis.Client, perMinute, burst int) RateLimiter {
	if client == nil {
		return nil
	}
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &redisRateLimiter{
		client:   client,
		rate:     float64(perMinute) / 60.0,
		capacity: burst,
		prefix:   "chat:rl:",
	}
}

func (l *redisRateLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalizedKey := strings.TrimSpace(key)
	if normalizedKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	nowMs := time.Now().UnixMilli()
	allowed, err := l.client.Eval(ctx, redisTokenBucketScript,
		[]string{l.prefix + normalizedKey}, l.rate, l.capacity, nowMs).Int()
	if err != nil {
		// Ante un Redis caido preferimos servir antes que bloquear.
		return true
	}
	return allowed == 1
}
