package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/zeltra/internal/billing/domain"
	"github.com/smallbiznis/zeltra/internal/invoice/format"
	"github.com/smallbiznis/zeltra/internal/observability/tracing"
	"github.com/smallbiznis/zeltra/pkg/apperror"
	"github.com/smallbiznis/zeltra/pkg/period"
)

var hundred = decimal.NewFromInt(100)

// CostBreakdown splits the period's live usage cost by service, largest first.
func (s *Service) CostBreakdown(ctx context.Context, billingPeriod time.Time) (breakdown *billingdomain.CostBreakdown, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "billing.CostBreakdown")
	defer func() { s.finish(ctx, span, "cost_breakdown", err) }()

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

	totals, err := s.repo.SumUsageByService(qctx, ownerID, p)
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	return buildBreakdown(p, s.billing.Get().Currency, totals), nil
}

func buildBreakdown(p time.Time, currency string, totals map[string]decimal.Decimal) *billingdomain.CostBreakdown {
	grand := decimal.Zero
	for _, total := range totals {
		grand = grand.Add(total)
	}

	services := make([]billingdomain.ServiceBreakdown, 0, len(totals))
	for serviceType, total := range totals {
		pct := decimal.Zero
		if grand.IsPositive() {
			pct = total.Div(grand).Mul(hundred).Round(currencyScale)
		}
		services = append(services, billingdomain.ServiceBreakdown{
			ServiceType: serviceType,
			Total:       total.Round(currencyScale),
			Percentage:  pct,
		})
	}
	sort.Slice(services, func(i, j int) bool {
		if !services[i].Total.Equal(services[j].Total) {
			return services[i].Total.GreaterThan(services[j].Total)
		}
		return services[i].ServiceType < services[j].ServiceType
	})

	return &billingdomain.CostBreakdown{
		BillingPeriod: p,
		Currency:      currency,
		Total:         grand.Round(currencyScale),
		Services:      services,
	}
}

// BudgetStatus compares spend against the configured monthly budget. Spend is
// the generated summary total when one exists, otherwise live usage.
func (s *Service) BudgetStatus(ctx context.Context, billingPeriod time.Time) (status *billingdomain.BudgetStatus, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "billing.BudgetStatus")
	defer func() { s.finish(ctx, span, "budget_status", err) }()

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

	var spent decimal.Decimal
	summary, err := s.repo.FindSummary(qctx, ownerID, p, false)
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	if summary != nil {
		spent = summary.TotalAmount
	} else {
		live, err := s.repo.SumUsage(qctx, ownerID, p)
		if err != nil {
			return nil, apperror.Persistence(err)
		}
		spent = live.Round(currencyScale)
	}

	cfg := s.billing.Get()
	return evaluateBudget(p, cfg.Currency, spent, cfg.MonthlyBudget(), cfg.BudgetWarningRatio()), nil
}

func evaluateBudget(p time.Time, currency string, spent, budget, warnAt decimal.Decimal) *billingdomain.BudgetStatus {
	status := &billingdomain.BudgetStatus{
		BillingPeriod: p,
		Currency:      currency,
		Spent:         spent,
		Budget:        budget,
		Remaining:     budget.Sub(spent),
		UsedRatio:     decimal.Zero,
		Alerts:        []billingdomain.BudgetAlert{},
	}
	if budget.IsPositive() {
		status.UsedRatio = spent.Div(budget).Round(4)
	}

	switch {
	case budget.IsPositive() && spent.GreaterThan(budget):
		status.Alerts = append(status.Alerts, billingdomain.BudgetAlert{
			Level: billingdomain.BudgetAlertExceeded,
			Message: fmt.Sprintf("%s spend of %s exceeds the monthly budget of %s",
				period.Label(p), format.FormatMoney(spent, currency), format.FormatMoney(budget, currency)),
		})
	case budget.IsPositive() && status.UsedRatio.GreaterThanOrEqual(warnAt):
		status.Alerts = append(status.Alerts, billingdomain.BudgetAlert{
			Level: billingdomain.BudgetAlertWarning,
			Message: fmt.Sprintf("%s spend has reached %s of the monthly budget of %s",
				period.Label(p), format.FormatPercent(status.UsedRatio), format.FormatMoney(budget, currency)),
		})
	}
	return status
}
