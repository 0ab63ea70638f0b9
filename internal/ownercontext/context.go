// Package ownercontext carries the authenticated owner identity on a context.
package ownercontext

import (
	"context"
	"strings"
)

// OwnerContextKey is the request context key for the authenticated owner ID.
type OwnerContextKey struct{}

// WithOwnerID stores the owner ID in the context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerContextKey{}, strings.TrimSpace(ownerID))
}

// OwnerIDFromContext returns the owner ID from context, if set and non-empty.
func OwnerIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(OwnerContextKey{}).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
