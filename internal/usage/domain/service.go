package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RecordUsageRequest struct {
	ServiceType   string          `json:"service_type" validate:"required,max=64"`
	UsageType     string          `json:"usage_type" validate:"required,max=64"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	ResourceID    *string         `json:"resource_id" validate:"omitempty,max=255"`
	BillingPeriod *time.Time      `json:"billing_period"`
	Metadata      map[string]any  `json:"metadata"`
}

type ListUsageRequest struct {
	BillingPeriod *time.Time `json:"billing_period"`
	ServiceType   string     `json:"service_type"`
}

type TrackStorageRequest struct {
	Bucket     string          `json:"bucket"`
	StorageGB  decimal.Decimal `json:"storage_gb"`
	TransferGB decimal.Decimal `json:"transfer_gb"`
}

// ServiceCost is the spend of one service within a period.
type ServiceCost struct {
	ServiceType string          `json:"service_type"`
	Total       decimal.Decimal `json:"total"`
}

// LineItem groups events sharing service, usage type and unit cost.
type LineItem struct {
	ServiceType string          `json:"service_type"`
	UsageType   string          `json:"usage_type"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Amount      decimal.Decimal `json:"amount"`
}

type Service interface {
	RecordUsage(context.Context, RecordUsageRequest) (*UsageEvent, error)
	ListUsage(context.Context, ListUsageRequest) ([]UsageEvent, error)
	TrackInstanceUsage(ctx context.Context, instanceID, instanceType string) (*UsageEvent, error)
	TrackStorageUsage(context.Context, TrackStorageRequest) ([]UsageEvent, error)
	LineItems(ctx context.Context, billingPeriod time.Time) ([]LineItem, error)
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, event *UsageEvent) error
	InsertBatch(ctx context.Context, events []*UsageEvent) error
	ListByOwnerPeriod(ctx context.Context, ownerID string, billingPeriod time.Time, serviceType string) ([]UsageEvent, error)
	ListOwners(ctx context.Context, billingPeriod time.Time) ([]string, error)
}

var (
	ErrInvalidServiceType = errors.New("invalid_service_type")
	ErrInvalidUsageType   = errors.New("invalid_usage_type")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidUnitCost    = errors.New("invalid_unit_cost")
	ErrInvalidResourceID  = errors.New("invalid_resource_id")
	ErrInvalidInstance    = errors.New("invalid_instance")
	ErrInvalidBucket      = errors.New("invalid_bucket")
)
