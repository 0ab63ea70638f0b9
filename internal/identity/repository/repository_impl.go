package repository

import (
	"context"

	identitydomain "github.com/smallbiznis/zeltra/internal/identity/domain"
	"github.com/smallbiznis/zeltra/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db       *gorm.DB
	profiles repository.Repository[identitydomain.Profile]
}

func Provide(db *gorm.DB) identitydomain.Repository {
	return &repo{
		db:       db,
		profiles: repository.ProvideStore[identitydomain.Profile](db),
	}
}

func (r *repo) FindByOwnerID(ctx context.Context, ownerID string) (*identitydomain.Profile, error) {
	return r.profiles.FindOne(ctx, &identitydomain.Profile{OwnerID: ownerID})
}

func (r *repo) Upsert(ctx context.Context, profile *identitydomain.Profile) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "username", "email", "updated_at"}),
	}).Create(profile).Error
}
