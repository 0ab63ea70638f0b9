package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	GenerateBilling(ctx context.Context, billingPeriod time.Time) (*BillingSummary, error)
	GetSummary(ctx context.Context, billingPeriod time.Time) (*BillingSummary, error)
	ListSummaries(ctx context.Context) ([]BillingSummary, error)
	ListSummariesByYear(ctx context.Context, year int) ([]BillingSummary, error)
	RecordInvoice(ctx context.Context, billingPeriod time.Time, invoiceNumber string) (*BillingSummary, error)
	Transition(ctx context.Context, billingPeriod time.Time, status SummaryStatus) (*BillingSummary, error)
	CostBreakdown(ctx context.Context, billingPeriod time.Time) (*CostBreakdown, error)
	BudgetStatus(ctx context.Context, billingPeriod time.Time) (*BudgetStatus, error)
	ListBillableOwners(ctx context.Context, billingPeriod time.Time) ([]string, error)
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockOwnerPeriod(ctx context.Context, ownerID string, billingPeriod time.Time) error
	SumUsage(ctx context.Context, ownerID string, billingPeriod time.Time) (decimal.Decimal, error)
	SumUsageByService(ctx context.Context, ownerID string, billingPeriod time.Time) (map[string]decimal.Decimal, error)
	FindSummary(ctx context.Context, ownerID string, billingPeriod time.Time, forUpdate bool) (*BillingSummary, error)
	UpsertSummary(ctx context.Context, summary *BillingSummary) error
	UpdateSummary(ctx context.Context, summary *BillingSummary, columns ...string) error
	ListSummaries(ctx context.Context, ownerID string, from, to *time.Time) ([]BillingSummary, error)
}

var (
	ErrInvalidPeriod     = errors.New("invalid_billing_period")
	ErrInvalidYear       = errors.New("invalid_year")
	ErrInvalidStatus     = errors.New("invalid_summary_status")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrSummaryClosed     = errors.New("summary_closed")
	ErrSummaryNotFound   = errors.New("summary_not_found")
	ErrInvalidInvoice    = errors.New("invalid_invoice_number")
)
