package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/zeltra/internal/billing/domain"
	"github.com/smallbiznis/zeltra/internal/clock"
	"github.com/smallbiznis/zeltra/internal/config"
	identitydomain "github.com/smallbiznis/zeltra/internal/identity/domain"
	invoicedomain "github.com/smallbiznis/zeltra/internal/invoice/domain"
	"github.com/smallbiznis/zeltra/internal/invoice/format"
	"github.com/smallbiznis/zeltra/internal/invoice/render"
	obsmetrics "github.com/smallbiznis/zeltra/internal/observability/metrics"
	"github.com/smallbiznis/zeltra/internal/observability/tracing"
	usagedomain "github.com/smallbiznis/zeltra/internal/usage/domain"
	"github.com/smallbiznis/zeltra/pkg/apperror"
	"github.com/smallbiznis/zeltra/pkg/log/ctxlogger"
	"github.com/smallbiznis/zeltra/pkg/period"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	tracerName    = "zeltra/invoice"
	currencyScale = 2
)

var errExporterMissing = errors.New("invoice exporter not configured")

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Billing  *config.BillingConfigHolder
	Identity identitydomain.Resolver
	Summary  billingdomain.Service
	Usage    usagedomain.Service
	Renderer render.Renderer
	Exporter invoicedomain.Exporter `optional:"true"`
	Metrics  *obsmetrics.Metrics    `optional:"true"`
}

type Service struct {
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	billing  *config.BillingConfigHolder
	identity identitydomain.Resolver
	summary  billingdomain.Service
	usage    usagedomain.Service
	renderer render.Renderer
	exporter invoicedomain.Exporter
	metrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		log: p.Log.Named("invoice.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		billing:  p.Billing,
		identity: p.Identity,
		summary:  p.Summary,
		usage:    p.Usage,
		renderer: p.Renderer,
		exporter: p.Exporter,
		metrics:  p.Metrics,
	}
}

// RenderInvoice builds the invoice view for one period and renders it. The
// subtotal is always req.TotalAmount.
func (s *Service) RenderInvoice(ctx context.Context, req invoicedomain.RenderInvoiceRequest) (doc *invoicedomain.Document, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "invoice.RenderInvoice",
		attribute.String("billing_period", period.Key(req.Period)),
	)
	defer func() { s.finish(ctx, span, "render_invoice", err) }()

	if req.Period.IsZero() {
		return nil, apperror.Validation(invoicedomain.ErrInvalidPeriod)
	}
	if req.TotalAmount.IsNegative() {
		return nil, apperror.Validation(invoicedomain.ErrInvalidTotal)
	}
	billTo, err := billToFromProfile(req.Profile)
	if err != nil {
		return nil, err
	}

	cfg := s.billing.Get()
	issuedAt := s.clock.Now()
	number, err := format.FormatInvoiceNumber(cfg.Invoice.NumberTemplate, issuedAt, s.genID.Generate().Int64())
	if err != nil {
		return nil, fmt.Errorf("invoice number: %w", err)
	}

	p := period.Of(req.Period)
	label := period.Label(p)
	subtotal := req.TotalAmount.Round(currencyScale)
	tax := subtotal.Mul(cfg.TaxRate()).Round(currencyScale)

	items := req.Items
	if len(items) == 0 {
		items = []invoicedomain.LineItem{defaultLineItem(label, subtotal)}
	}

	invoice := invoicedomain.Invoice{
		Number:      number,
		IssuedAt:    issuedAt,
		DueAt:       issuedAt.AddDate(0, 0, cfg.Invoice.DueDays),
		Period:      p,
		PeriodLabel: label,
		Currency:    cfg.Currency,
		Issuer: invoicedomain.Issuer{
			Name:      cfg.Issuer.Name,
			Tagline:   cfg.Issuer.Tagline,
			Address:   cfg.Issuer.Address,
			VATNumber: cfg.Issuer.VATNumber,
			Email:     cfg.Issuer.Email,
			Phone:     cfg.Issuer.Phone,
		},
		BillTo:       billTo,
		Items:        items,
		Subtotal:     subtotal,
		TaxLabel:     cfg.Tax.Label,
		TaxRate:      cfg.TaxRate(),
		Tax:          tax,
		Total:        subtotal.Add(tax),
		PaymentTerms: cfg.Invoice.PaymentTerms,
	}

	html, err := s.renderer.RenderHTML(invoice)
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", number, err)
	}

	s.metrics.RecordInvoice("html")
	return &invoicedomain.Document{Invoice: invoice, HTML: html}, nil
}

// IssueInvoice renders the current owner's invoice for a generated summary
// and records the invoice number on it.
func (s *Service) IssueInvoice(ctx context.Context, billingPeriod time.Time) (doc *invoicedomain.Document, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "invoice.IssueInvoice",
		attribute.String("billing_period", period.Key(billingPeriod)),
	)
	defer func() { s.finish(ctx, span, "issue_invoice", err) }()

	owner, err := s.identity.Current(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := s.summary.GetSummary(ctx, billingPeriod)
	if err != nil {
		return nil, err
	}
	usage, err := s.usage.LineItems(ctx, summary.BillingPeriod)
	if err != nil {
		return nil, err
	}

	items, ok := lineItemsFromUsage(usage, summary.TotalAmount.Round(currencyScale))
	if !ok {
		// Usage recorded after aggregation: the summary stays authoritative.
		ctxlogger.WithContext(ctx, s.log).Warn("usage no longer matches summary, using single invoice line",
			zap.String("billing_period", period.Key(summary.BillingPeriod)),
			zap.String("summary_total", summary.TotalAmount.String()),
		)
		items = nil
	}

	doc, err = s.RenderInvoice(ctx, invoicedomain.RenderInvoiceRequest{
		Period:      summary.BillingPeriod,
		TotalAmount: summary.TotalAmount,
		Profile:     &owner.Profile,
		Items:       items,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.summary.RecordInvoice(ctx, summary.BillingPeriod, doc.Invoice.Number); err != nil {
		return nil, err
	}

	ctxlogger.WithContext(ctx, s.log).Info("invoice issued",
		zap.String("invoice_number", doc.Invoice.Number),
		zap.String("billing_period", period.Key(summary.BillingPeriod)),
	)
	return doc, nil
}

// Export hands the rendered invoice to the configured exporter.
func (s *Service) Export(ctx context.Context, doc *invoicedomain.Document) (out []byte, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "invoice.Export")
	defer func() { s.finish(ctx, span, "export_invoice", err) }()

	if doc == nil || strings.TrimSpace(doc.Invoice.Number) == "" {
		return nil, apperror.Validation(invoicedomain.ErrEmptyDocument)
	}
	if s.exporter == nil {
		return nil, errExporterMissing
	}

	out, err = s.exporter.Invoice(ctx, doc.Invoice)
	if err != nil {
		return nil, fmt.Errorf("export invoice %s: %w", doc.Invoice.Number, err)
	}
	s.metrics.RecordInvoice("pdf")
	return out, nil
}

func billToFromProfile(profile *identitydomain.Profile) (invoicedomain.BillTo, error) {
	if profile == nil {
		return invoicedomain.BillTo{}, apperror.ProfileUnavailable(invoicedomain.ErrMissingProfile)
	}
	name := profile.DisplayName()
	if name == "" {
		return invoicedomain.BillTo{}, apperror.ProfileUnavailable(invoicedomain.ErrBlankProfile)
	}
	return invoicedomain.BillTo{
		Name:     name,
		Username: strings.TrimSpace(profile.Username),
		Email:    strings.TrimSpace(profile.Email),
	}, nil
}

func defaultLineItem(label string, total decimal.Decimal) invoicedomain.LineItem {
	return invoicedomain.LineItem{
		Description: "Cloud services: " + label,
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   total,
		Amount:      total,
	}
}

// lineItemsFromUsage prices usage rows to whole cents that add up exactly to
// subtotal, handing leftover cents to the rows with the largest rounding
// remainders. It reports false when the unrounded usage no longer rounds to
// subtotal.
func lineItemsFromUsage(rows []usagedomain.LineItem, subtotal decimal.Decimal) ([]invoicedomain.LineItem, bool) {
	if len(rows) == 0 {
		return nil, true
	}

	raw := decimal.Zero
	for _, row := range rows {
		raw = raw.Add(row.Amount)
	}
	if !raw.Round(currencyScale).Equal(subtotal) {
		return nil, false
	}

	cent := decimal.New(1, -currencyScale)
	items := make([]invoicedomain.LineItem, len(rows))
	remainders := make([]decimal.Decimal, len(rows))
	allocated := decimal.Zero
	for i, row := range rows {
		floor := row.Amount.RoundFloor(currencyScale)
		remainders[i] = row.Amount.Sub(floor)
		allocated = allocated.Add(floor)
		items[i] = invoicedomain.LineItem{
			Description: row.ServiceType,
			Detail:      strings.ReplaceAll(row.UsageType, "_", " "),
			Quantity:    row.Quantity,
			UnitPrice:   row.UnitCost,
			Amount:      floor,
		}
	}

	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})

	left := subtotal.Sub(allocated).Div(cent).IntPart()
	for i := 0; left > 0; i = (i + 1) % len(order) {
		items[order[i]].Amount = items[order[i]].Amount.Add(cent)
		left--
	}
	return items, true
}

func (s *Service) finish(ctx context.Context, span tracing.Span, operation string, err error) {
	tracing.EndSpan(span, err)
	if err == nil {
		return
	}
	s.metrics.RecordError(operation, apperror.KindOf(err))
	ctxlogger.WithContext(ctx, s.log).Warn("invoice operation failed",
		zap.String("operation", operation),
		zap.String("kind", string(apperror.KindOf(err))),
		zap.Error(err),
	)
}
