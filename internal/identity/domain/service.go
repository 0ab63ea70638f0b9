package domain

import (
	"context"
	"errors"
)

type UpsertProfileRequest struct {
	FullName string `json:"full_name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Resolver is the identity boundary: it names the current owner and its profile.
type Resolver interface {
	// OwnerID returns the authenticated owner or a not_authenticated error.
	OwnerID(ctx context.Context) (string, error)
	// Current returns the owner with a resolvable display identity or a profile_unavailable error.
	Current(ctx context.Context) (Owner, error)
}

type Service interface {
	Resolver
	UpsertProfile(ctx context.Context, req UpsertProfileRequest) (*Profile, error)
}

type Repository interface {
	FindByOwnerID(ctx context.Context, ownerID string) (*Profile, error)
	Upsert(ctx context.Context, profile *Profile) error
}

var (
	ErrMissingOwner    = errors.New("missing_owner")
	ErrProfileNotFound = errors.New("profile_not_found")
	ErrProfileBlank    = errors.New("profile_display_identity_blank")
	ErrInvalidProfile  = errors.New("invalid_profile")
)
