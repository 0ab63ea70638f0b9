package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/zeltra/internal/billing/domain"
	"github.com/smallbiznis/zeltra/internal/billing/repository"
	"github.com/smallbiznis/zeltra/internal/clock"
	"github.com/smallbiznis/zeltra/internal/config"
	identitydomain "github.com/smallbiznis/zeltra/internal/identity/domain"
	"github.com/smallbiznis/zeltra/internal/lock"
	obsmetrics "github.com/smallbiznis/zeltra/internal/observability/metrics"
	"github.com/smallbiznis/zeltra/internal/observability/tracing"
	usagedomain "github.com/smallbiznis/zeltra/internal/usage/domain"
	"github.com/smallbiznis/zeltra/pkg/apperror"
	"github.com/smallbiznis/zeltra/pkg/db"
	"github.com/smallbiznis/zeltra/pkg/log/ctxlogger"
	"github.com/smallbiznis/zeltra/pkg/period"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	tracerName    = "zeltra/billing"
	currencyScale = 2
)

var aggregateColumns = []string{"total_amount", "currency", "status", "generated_at", "updated_at"}

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Identity  identitydomain.Resolver
	Billing   *config.BillingConfigHolder
	Locker    lock.Locker
	UsageRepo usagedomain.Repository
	Timeout   db.Timeout          `optional:"true"`
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID     *snowflake.Node
	clock     clock.Clock
	identity  identitydomain.Resolver
	billing   *config.BillingConfigHolder
	locker    lock.Locker
	timeout   db.Timeout
	metrics   *obsmetrics.Metrics
	repo      billingdomain.Repository
	usagerepo usagedomain.Repository
}

func NewService(p ServiceParam) billingdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("billing.service"),

		genID:     p.GenID,
		clock:     p.Clock,
		identity:  p.Identity,
		billing:   p.Billing,
		locker:    p.Locker,
		timeout:   p.Timeout,
		metrics:   p.Metrics,
		repo:      repository.Provide(p.DB),
		usagerepo: p.UsageRepo,
	}
}

// GenerateBilling recomputes the owner's total for billingPeriod and stores it
// as a generated summary. Runs for the same owner and period are serialized
// and never increment a prior total.
func (s *Service) GenerateBilling(ctx context.Context, billingPeriod time.Time) (summary *billingdomain.BillingSummary, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "billing.GenerateBilling",
		attribute.String("billing_period", period.Key(billingPeriod)),
	)
	defer func() { s.finish(ctx, span, "generate_billing", err) }()

	ownerID, err := s.identity.OwnerID(ctx)
	if err != nil {
		return nil, err
	}
	p, err := normalizePeriod(billingPeriod)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	qctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	release, err := s.locker.Acquire(qctx, lockKey(ownerID, p))
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	defer release()

	cfg := s.billing.Get()
	err = s.db.WithContext(qctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.LockOwnerPeriod(qctx, ownerID, p); err != nil {
			return err
		}

		existing, err := repo.FindSummary(qctx, ownerID, p, true)
		if err != nil {
			return err
		}
		if existing != nil && !existing.Status.CanTransition(billingdomain.SummaryStatusGenerated) {
			return apperror.Validation(billingdomain.ErrSummaryClosed)
		}

		total, err := repo.SumUsage(qctx, ownerID, p)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if existing != nil {
			existing.TotalAmount = total.Round(currencyScale)
			existing.Currency = cfg.Currency
			existing.Status = billingdomain.SummaryStatusGenerated
			existing.GeneratedAt = now
			existing.UpdatedAt = now
			if err := repo.UpdateSummary(qctx, existing, aggregateColumns...); err != nil {
				return err
			}
		} else {
			row := &billingdomain.BillingSummary{
				ID:            s.genID.Generate(),
				OwnerID:       ownerID,
				BillingPeriod: p,
				TotalAmount:   total.Round(currencyScale),
				Currency:      cfg.Currency,
				Status:        billingdomain.SummaryStatusGenerated,
				GeneratedAt:   now,
				UpdatedAt:     now,
			}
			if err := repo.UpsertSummary(qctx, row); err != nil {
				return err
			}
		}

		summary, err = repo.FindSummary(qctx, ownerID, p, false)
		return err
	})
	if err != nil {
		s.metrics.RecordAggregation("failed", time.Since(started).Seconds())
		return nil, persistenceOr(err)
	}
	if summary == nil {
		return nil, apperror.Persistence(errors.New("summary missing after upsert"))
	}

	s.metrics.RecordAggregation(string(summary.Status), time.Since(started).Seconds())
	ctxlogger.WithContext(ctx, s.log).Info("billing generated",
		zap.String("billing_period", period.Key(p)),
		zap.String("summary_id", summary.ID.String()),
		zap.String("total_amount", summary.TotalAmount.StringFixed(currencyScale)),
	)
	return summary, nil
}

func (s *Service) GetSummary(ctx context.Context, billingPeriod time.Time) (summary *billingdomain.BillingSummary, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "billing.GetSummary")
	defer func() { s.finish(ctx, span, "get_summary", err) }()

	ownerID, err := s.identity.OwnerID(ctx)
	if err != nil {
		return nil, err
	}
	p, err := normalizePeriod(billingPeriod)
	if err != nil {
		return nil, err
	}

	qctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	summary, err = s.repo.FindSummary(qctx, ownerID, p, false)
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	if summary == nil {
		return nil, apperror.NotFound(billingdomain.ErrSummaryNotFound)
	}
	return summary, nil
}

func (s *Service) ListSummaries(ctx context.Context) (items []billingdomain.BillingSummary, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "billing.ListSummaries")
	defer func() { s.finish(ctx, span, "list_summaries", err) }()

	return s.listSummaries(ctx, nil, nil)
}

func (s *Service) ListSummariesByYear(ctx context.Context, year int) (items []billingdomain.BillingSummary, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "billing.ListSummariesByYear",
		attribute.Int("year", year),
	)
	defer func() { s.finish(ctx, span, "list_summaries_by_year", err) }()

	if year < 1970 || year > 9999 {
		return nil, apperror.Validation(billingdomain.ErrInvalidYear)
	}
	from, to := period.YearRange(year)
	return s.listSummaries(ctx, &from, &to)
}

func (s *Service) listSummaries(ctx context.Context, from, to *time.Time) ([]billingdomain.BillingSummary, error) {
	ownerID, err := s.identity.OwnerID(ctx)
	if err != nil {
		return nil, err
	}

	qctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	items, err := s.repo.ListSummaries(qctx, ownerID, from, to)
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	return items, nil
}

// RecordInvoice stores the issued invoice number on the summary. The total is
// left untouched.
func (s *Service) RecordInvoice(ctx context.Context, billingPeriod time.Time, invoiceNumber string) (summary *billingdomain.BillingSummary, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "billing.RecordInvoice")
	defer func() { s.finish(ctx, span, "record_invoice", err) }()

	if invoiceNumber == "" {
		return nil, apperror.Validation(billingdomain.ErrInvalidInvoice)
	}

	return s.mutateSummary(ctx, billingPeriod, func(row *billingdomain.BillingSummary, now time.Time) ([]string, error) {
		data := datatypes.JSONMap{}
		for k, v := range row.InvoiceData {
			data[k] = v
		}
		data[billingdomain.InvoiceDataNumber] = invoiceNumber
		data[billingdomain.InvoiceDataGeneratedAt] = now.Format(time.RFC3339)
		data[billingdomain.InvoiceDataBillingPeriod] = period.Label(row.BillingPeriod)

		row.InvoiceData = data
		row.UpdatedAt = now
		return []string{"invoice_data", "updated_at"}, nil
	})
}

// Transition moves the summary to status when the state machine allows it.
func (s *Service) Transition(ctx context.Context, billingPeriod time.Time, status billingdomain.SummaryStatus) (summary *billingdomain.BillingSummary, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "billing.Transition",
		attribute.String("status", string(status)),
	)
	defer func() { s.finish(ctx, span, "transition", err) }()

	if !status.Valid() {
		return nil, apperror.Validation(billingdomain.ErrInvalidStatus)
	}

	return s.mutateSummary(ctx, billingPeriod, func(row *billingdomain.BillingSummary, now time.Time) ([]string, error) {
		if !row.Status.CanTransition(status) {
			return nil, apperror.Validation(billingdomain.ErrInvalidTransition)
		}
		row.Status = status
		row.UpdatedAt = now
		return []string{"status", "updated_at"}, nil
	})
}

type summaryMutation func(row *billingdomain.BillingSummary, now time.Time) ([]string, error)

func (s *Service) mutateSummary(ctx context.Context, billingPeriod time.Time, mutate summaryMutation) (*billingdomain.BillingSummary, error) {
	ownerID, err := s.identity.OwnerID(ctx)
	if err != nil {
		return nil, err
	}
	p, err := normalizePeriod(billingPeriod)
	if err != nil {
		return nil, err
	}

	qctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	release, err := s.locker.Acquire(qctx, lockKey(ownerID, p))
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	defer release()

	var summary *billingdomain.BillingSummary
	err = s.db.WithContext(qctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		row, err := repo.FindSummary(qctx, ownerID, p, true)
		if err != nil {
			return err
		}
		if row == nil {
			return apperror.NotFound(billingdomain.ErrSummaryNotFound)
		}

		columns, err := mutate(row, s.clock.Now())
		if err != nil {
			return err
		}
		if err := repo.UpdateSummary(qctx, row, columns...); err != nil {
			return err
		}
		summary = row
		return nil
	})
	if err != nil {
		return nil, persistenceOr(err)
	}
	return summary, nil
}

func (s *Service) ListBillableOwners(ctx context.Context, billingPeriod time.Time) (owners []string, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "billing.ListBillableOwners")
	defer func() { s.finish(ctx, span, "list_billable_owners", err) }()

	p, err := normalizePeriod(billingPeriod)
	if err != nil {
		return nil, err
	}

	qctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	owners, err = s.usagerepo.ListOwners(qctx, p)
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	return owners, nil
}

func (s *Service) finish(ctx context.Context, span tracing.Span, operation string, err error) {
	tracing.EndSpan(span, err)
	if err == nil {
		return
	}
	s.metrics.RecordError(operation, apperror.KindOf(err))
	ctxlogger.WithContext(ctx, s.log).Warn("billing operation failed",
		zap.String("operation", operation),
		zap.String("kind", string(apperror.KindOf(err))),
		zap.Error(err),
	)
}

func normalizePeriod(value time.Time) (time.Time, error) {
	if value.IsZero() {
		return time.Time{}, apperror.Validation(billingdomain.ErrInvalidPeriod)
	}
	return period.Of(value), nil
}

func lockKey(ownerID string, p time.Time) string {
	return "billing:" + ownerID + ":" + period.Key(p)
}

// persistenceOr keeps categorized errors and files everything else as a
// persistence failure.
func persistenceOr(err error) error {
	if apperror.KindOf(err) != "" {
		return err
	}
	return apperror.Persistence(err)
}
