package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/zeltra/internal/ownercontext"
	"github.com/smallbiznis/zeltra/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

// UsageRecordRateLimit spends one token from the owner's bucket per write.
// Requests without an owner pass through and are rejected by the service.
func (s *Server) UsageRecordRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.usageLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		ownerID, ok := ownercontext.OwnerIDFromContext(ctx)
		if !ok {
			c.Next()
			return
		}

		result, err := s.usageLimiter.AllowOwner(ctx, ownerID)
		if err != nil {
			ctxlogger.WithContext(ctx, s.log).Warn("usage rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			ctxlogger.WithContext(ctx, s.log).Warn("usage rate limit exceeded",
				zap.String("endpoint", c.FullPath()),
			)
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}
