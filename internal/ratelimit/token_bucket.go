package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// KEYS[1] bucket hash; ARGV rate (tokens/s), burst, ttl (ms).
// Remaining tokens are returned as a string: Redis truncates Lua numbers to integers.
const spendScript = `
local rate, burst, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])
local clock = redis.call("TIME")
local nowMs = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens, last = tonumber(state[1]), tonumber(state[2])
if tokens == nil then
  tokens, last = burst, nowMs
end

local elapsed = math.max(0, nowMs - last)
tokens = math.min(burst, tokens + elapsed * rate / 1000)

local granted = 0
if tokens >= 1 then
  tokens = tokens - 1
  granted = 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", nowMs)
redis.call("PEXPIRE", KEYS[1], ttl)
return {granted, tostring(tokens), nowMs}
`

var (
	ErrNotConfigured = errors.New("rate limiter not configured")
	ErrEmptyKey      = errors.New("rate limiter key is empty")
	ErrInvalidLimit  = errors.New("rate limiter rate and burst must be positive")
	errBadReply      = errors.New("unexpected rate limit script reply")
)

// TokenBucket keeps one bucket per key in Redis and refills it lazily on spend.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(spendScript)}
}

// Allow spends one token from key's bucket.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	denied := &RateLimitResult{Limit: burst}
	switch {
	case t == nil || t.client == nil:
		return denied, ErrNotConfigured
	case key == "":
		return denied, ErrEmptyKey
	case rate <= 0 || burst <= 0:
		return denied, ErrInvalidLimit
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		rate, burst, bucketTTL(rate, burst).Milliseconds(),
	).Slice()
	if err != nil {
		return denied, err
	}
	return parseReply(reply, rate, burst)
}

func parseReply(reply []any, rate float64, burst int) (*RateLimitResult, error) {
	if len(reply) != 3 {
		return &RateLimitResult{Limit: burst}, errBadReply
	}
	granted, _ := reply[0].(int64)
	nowMs, _ := reply[2].(int64)
	remaining, err := replyFloat(reply[1])
	if err != nil {
		return &RateLimitResult{Limit: burst}, err
	}

	result := &RateLimitResult{
		Allowed:   granted == 1,
		Limit:     burst,
		Remaining: int(math.Floor(remaining)),
		ResetTime: time.UnixMilli(nowMs),
	}
	if !result.Allowed {
		result.RetryAfter = time.Duration((1 - remaining) / rate * float64(time.Second))
		result.ResetTime = result.ResetTime.Add(result.RetryAfter)
	}
	return result, nil
}

// bucketTTL keeps an idle bucket for twice its full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	return time.Duration(max(1, math.Ceil(2*float64(burst)/rate))) * time.Second
}

func replyFloat(v any) (float64, error) {
	switch val := v.(type) {
	case string:
		return strconv.ParseFloat(val, 64)
	case int64:
		return float64(val), nil
	default:
		return 0, errBadReply
	}
}
