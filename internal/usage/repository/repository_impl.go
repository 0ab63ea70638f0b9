package repository

import (
	"context"
	"strings"
	"time"

	usagedomain "github.com/smallbiznis/zeltra/internal/usage/domain"
	"github.com/smallbiznis/zeltra/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	db     *gorm.DB
	events repository.Repository[usagedomain.UsageEvent]
}

func Provide(db *gorm.DB) usagedomain.Repository {
	return &repo{
		db:     db,
		events: repository.ProvideStore[usagedomain.UsageEvent](db),
	}
}

func (r *repo) WithTx(tx *gorm.DB) usagedomain.Repository {
	return Provide(tx)
}

func (r *repo) Insert(ctx context.Context, event *usagedomain.UsageEvent) error {
	return r.events.Create(ctx, event)
}

func (r *repo) InsertBatch(ctx context.Context, events []*usagedomain.UsageEvent) error {
	return r.events.BatchCreate(ctx, events)
}

func (r *repo) ListByOwnerPeriod(ctx context.Context, ownerID string, billingPeriod time.Time, serviceType string) ([]usagedomain.UsageEvent, error) {
	opts := []repository.QueryOption{
		repository.WithWhere("billing_period = ?", billingPeriod),
		repository.WithOrder("recorded_at DESC, id DESC"),
	}
	if serviceType = strings.TrimSpace(serviceType); serviceType != "" {
		opts = append(opts, repository.WithWhere("service_type = ?", serviceType))
	}

	rows, err := r.events.Find(ctx, &usagedomain.UsageEvent{OwnerID: ownerID}, opts...)
	if err != nil {
		return nil, err
	}
	items := make([]usagedomain.UsageEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, *row)
	}
	return items, nil
}

func (r *repo) ListOwners(ctx context.Context, billingPeriod time.Time) ([]string, error) {
	var owners []string
	err := r.db.WithContext(ctx).
		Model(&usagedomain.UsageEvent{}).
		Where("billing_period = ?", billingPeriod).
		Distinct("owner_id").
		Order("owner_id ASC").
		Pluck("owner_id", &owners).Error
	if err != nil {
		return nil, err
	}
	return owners, nil
}
