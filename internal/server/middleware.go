package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/zeltra/internal/ownercontext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HeaderOwnerID carries the authenticated owner from the upstream gateway.
const HeaderOwnerID = "X-Owner-ID"

// OwnerContext copies the gateway's owner header into the request context.
// A missing header is left for the services to reject.
func (s *Server) OwnerContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := strings.TrimSpace(c.GetHeader(HeaderOwnerID))
		if ownerID == "" {
			c.Next()
			return
		}
		ctx := ownercontext.WithOwnerID(c.Request.Context(), ownerID)
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("owner.id", ownerID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
