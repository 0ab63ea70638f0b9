package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/zeltra/internal/billing/domain"
	usagedomain "github.com/smallbiznis/zeltra/internal/usage/domain"
	"github.com/smallbiznis/zeltra/pkg/db"
	"github.com/smallbiznis/zeltra/pkg/period"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

func Provide(conn *gorm.DB) billingdomain.Repository {
	return &repo{db: conn}
}

func (r *repo) WithTx(tx *gorm.DB) billingdomain.Repository {
	return &repo{db: tx}
}

// LockOwnerPeriod takes a transaction-scoped advisory lock on Postgres. Other
// dialects rely on the row lock taken by FindSummary and the caller's Locker.
func (r *repo) LockOwnerPeriod(ctx context.Context, ownerID string, billingPeriod time.Time) error {
	if !db.IsPostgres(r.db) {
		return nil
	}
	key := fmt.Sprintf("billing_summary:%s:%s", ownerID, period.Key(billingPeriod))
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error
}

type costRow struct {
	ServiceType string
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
}

func (r *repo) costRows(ctx context.Context, ownerID string, billingPeriod time.Time) ([]costRow, error) {
	var rows []costRow
	err := r.db.WithContext(ctx).
		Model(&usagedomain.UsageEvent{}).
		Select("service_type", "quantity", "unit_cost").
		Where("owner_id = ? AND billing_period = ?", ownerID, billingPeriod).
		Scan(&rows).Error
	return rows, err
}

// SumUsage adds quantity × unit cost in decimal arithmetic; no rounding.
func (r *repo) SumUsage(ctx context.Context, ownerID string, billingPeriod time.Time) (decimal.Decimal, error) {
	rows, err := r.costRows(ctx, ownerID, billingPeriod)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Quantity.Mul(row.UnitCost))
	}
	return total, nil
}

func (r *repo) SumUsageByService(ctx context.Context, ownerID string, billingPeriod time.Time) (map[string]decimal.Decimal, error) {
	rows, err := r.costRows(ctx, ownerID, billingPeriod)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]decimal.Decimal)
	for _, row := range rows {
		totals[row.ServiceType] = totals[row.ServiceType].Add(row.Quantity.Mul(row.UnitCost))
	}
	return totals, nil
}

func (r *repo) FindSummary(ctx context.Context, ownerID string, billingPeriod time.Time, forUpdate bool) (*billingdomain.BillingSummary, error) {
	stmt := r.db.WithContext(ctx)
	if forUpdate && !db.IsSQLite(r.db) {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var summary billingdomain.BillingSummary
	err := stmt.
		Where("owner_id = ? AND billing_period = ?", ownerID, billingPeriod).
		First(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &summary, nil
}

// UpsertSummary inserts summary, or rewrites the aggregate columns when another
// writer created the (owner_id, billing_period) row first. id and invoice_data
// of the existing row are kept.
func (r *repo) UpsertSummary(ctx context.Context, summary *billingdomain.BillingSummary) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}, {Name: "billing_period"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_amount",
			"currency",
			"status",
			"generated_at",
			"updated_at",
		}),
	}).Create(summary).Error
}

func (r *repo) UpdateSummary(ctx context.Context, summary *billingdomain.BillingSummary, columns ...string) error {
	return r.db.WithContext(ctx).
		Model(summary).
		Select(columns).
		Updates(summary).Error
}

func (r *repo) ListSummaries(ctx context.Context, ownerID string, from, to *time.Time) ([]billingdomain.BillingSummary, error) {
	stmt := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if from != nil {
		stmt = stmt.Where("billing_period >= ?", *from)
	}
	if to != nil {
		stmt = stmt.Where("billing_period < ?", *to)
	}

	var summaries []billingdomain.BillingSummary
	if err := stmt.Order("billing_period DESC").Find(&summaries).Error; err != nil {
		return nil, err
	}
	return summaries, nil
}
