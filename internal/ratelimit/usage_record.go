package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/zeltra/internal/config"
	"go.uber.org/zap"
)

const keyUsageRecordOwner = "zeltra:usage:record:owner:%s"

// UsageLimiter throttles usage recording per owner. A nil limiter allows everything.
type UsageLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewUsageLimiter returns nil unless both Redis and USAGE_RATE_LIMIT are configured.
func NewUsageLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *UsageLimiter {
	if client == nil || cfg.UsageRateLimit <= 0 || cfg.UsageRateBurst <= 0 {
		return nil
	}
	log.Info("usage rate limiting enabled",
		zap.Float64("rate", cfg.UsageRateLimit),
		zap.Int("burst", cfg.UsageRateBurst),
	)
	return &UsageLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.UsageRateLimit,
		burst:  cfg.UsageRateBurst,
	}
}

func (l *UsageLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowOwner spends one token from the owner's bucket.
func (l *UsageLimiter) AllowOwner(ctx context.Context, ownerID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyUsageRecordOwner, strings.TrimSpace(ownerID)), l.rate, l.burst)
}
