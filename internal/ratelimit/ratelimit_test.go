package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/zeltra/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNilLimiterAllows(t *testing.T) {
	l := NewUsageLimiter(config.Config{UsageRateLimit: 5, UsageRateBurst: 10}, nil, zap.NewNop())
	assert.Nil(t, l)
	assert.False(t, l.Enabled())

	res, err := l.AllowOwner(context.Background(), "U1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketWithoutClient(t *testing.T) {
	var bucket *TokenBucket
	res, err := bucket.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, res.Allowed)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, bucketTTL(0, 10))
	assert.Equal(t, 4*time.Second, bucketTTL(5, 10))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestParseReply(t *testing.T) {
	res, err := parseReply([]any{int64(1), "3.75", int64(1_700_000_000_000)}, 2, 5)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)
	assert.Zero(t, res.RetryAfter)

	res, err = parseReply([]any{int64(0), "0.5", int64(1_700_000_000_000)}, 2, 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 250*time.Millisecond, res.RetryAfter)
	assert.Equal(t, time.UnixMilli(1_700_000_000_250), res.ResetTime)

	_, err = parseReply([]any{int64(1)}, 2, 5)
	assert.ErrorIs(t, err, errBadReply)

	_, err = parseReply([]any{int64(1), struct{}{}, int64(0)}, 2, 5)
	assert.ErrorIs(t, err, errBadReply)
}
