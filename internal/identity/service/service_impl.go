package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/zeltra/internal/clock"
	identitydomain "github.com/smallbiznis/zeltra/internal/identity/domain"
	"github.com/smallbiznis/zeltra/internal/identity/repository"
	"github.com/smallbiznis/zeltra/internal/ownercontext"
	"github.com/smallbiznis/zeltra/pkg/apperror"
	"github.com/smallbiznis/zeltra/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Timeout db.Timeout `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	timeout db.Timeout
	repo    identitydomain.Repository
}

func NewService(p ServiceParam) identitydomain.Service {
	return &Service{
		log:     p.Log.Named("identity.service"),
		clock:   p.Clock,
		timeout: p.Timeout,
		repo:    repository.Provide(p.DB),
	}
}

func (s *Service) OwnerID(ctx context.Context) (string, error) {
	ownerID, ok := ownercontext.OwnerIDFromContext(ctx)
	if !ok {
		return "", apperror.NotAuthenticated(identitydomain.ErrMissingOwner)
	}
	return ownerID, nil
}

func (s *Service) Current(ctx context.Context) (identitydomain.Owner, error) {
	ownerID, err := s.OwnerID(ctx)
	if err != nil {
		return identitydomain.Owner{}, err
	}

	qctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	profile, err := s.repo.FindByOwnerID(qctx, ownerID)
	if err != nil {
		return identitydomain.Owner{}, apperror.Persistence(err)
	}
	if profile == nil {
		return identitydomain.Owner{}, apperror.ProfileUnavailable(identitydomain.ErrProfileNotFound)
	}
	if profile.DisplayName() == "" {
		return identitydomain.Owner{}, apperror.ProfileUnavailable(identitydomain.ErrProfileBlank)
	}

	return identitydomain.Owner{ID: ownerID, Profile: *profile}, nil
}

func (s *Service) UpsertProfile(ctx context.Context, req identitydomain.UpsertProfileRequest) (*identitydomain.Profile, error) {
	ownerID, err := s.OwnerID(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	profile := &identitydomain.Profile{
		OwnerID:   ownerID,
		FullName:  strings.TrimSpace(req.FullName),
		Username:  strings.TrimSpace(req.Username),
		Email:     strings.TrimSpace(req.Email),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if profile.DisplayName() == "" {
		return nil, apperror.Validation(identitydomain.ErrInvalidProfile)
	}

	qctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	if err := s.repo.Upsert(qctx, profile); err != nil {
		s.log.Warn("failed to upsert profile", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, apperror.Persistence(err)
	}
	return profile, nil
}
