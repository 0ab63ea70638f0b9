package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/zeltra/internal/billing/domain"
	billingservice "github.com/smallbiznis/zeltra/internal/billing/service"
	"github.com/smallbiznis/zeltra/internal/clock"
	"github.com/smallbiznis/zeltra/internal/config"
	identitydomain "github.com/smallbiznis/zeltra/internal/identity/domain"
	identityservice "github.com/smallbiznis/zeltra/internal/identity/service"
	invoicedomain "github.com/smallbiznis/zeltra/internal/invoice/domain"
	"github.com/smallbiznis/zeltra/internal/invoice/render"
	"github.com/smallbiznis/zeltra/internal/lock"
	"github.com/smallbiznis/zeltra/internal/ownercontext"
	usagedomain "github.com/smallbiznis/zeltra/internal/usage/domain"
	usagerepository "github.com/smallbiznis/zeltra/internal/usage/repository"
	usageservice "github.com/smallbiznis/zeltra/internal/usage/service"
	"github.com/smallbiznis/zeltra/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var january = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type mockExporter struct {
	mock.Mock
}

func (m *mockExporter) Invoice(ctx context.Context, invoice invoicedomain.Invoice) ([]byte, error) {
	args := m.Called(ctx, invoice)
	if b, ok := args.Get(0).([]byte); ok {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

type fixture struct {
	invoices invoicedomain.Service
	identity identitydomain.Service
	usage    usagedomain.Service
	billing  billingdomain.Service
}

type fixtureOption func(*ServiceParam)

func withRenderer(r render.Renderer) fixtureOption {
	return func(p *ServiceParam) { p.Renderer = r }
}

func withExporter(e invoicedomain.Exporter) fixtureOption {
	return func(p *ServiceParam) { p.Exporter = e }
}

func setup(t *testing.T, opts ...fixtureOption) fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&identitydomain.Profile{},
		&usagedomain.UsageEvent{},
		&billingdomain.BillingSummary{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC))
	holder := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	identity := identityservice.NewService(identityservice.ServiceParam{DB: db, Log: zap.NewNop(), Clock: fake})
	usage := usageservice.NewService(usageservice.ServiceParam{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fake, Identity: identity, Billing: holder,
	})
	billing := billingservice.NewService(billingservice.ServiceParam{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fake, Identity: identity, Billing: holder,
		Locker: lock.NewLocalLocker(), UsageRepo: usagerepository.Provide(db),
	})

	param := ServiceParam{
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Billing:  holder,
		Identity: identity,
		Summary:  billing,
		Usage:    usage,
		Renderer: render.NewRenderer(),
	}
	for _, opt := range opts {
		opt(&param)
	}

	return fixture{invoices: NewService(param), identity: identity, usage: usage, billing: billing}
}

func profile() *identitydomain.Profile {
	return &identitydomain.Profile{OwnerID: "U1", FullName: "Ada Lovelace", Username: "ada", Email: "ada@example.com"}
}

func TestRenderInvoiceDefaults(t *testing.T) {
	f := setup(t)

	doc, err := f.invoices.RenderInvoice(context.Background(), invoicedomain.RenderInvoiceRequest{
		Period:      january,
		TotalAmount: decimal.RequireFromString("0.91"),
		Profile:     profile(),
	})
	require.NoError(t, err)

	inv := doc.Invoice
	assert.True(t, strings.HasPrefix(inv.Number, "ZC-202401-"), inv.Number)
	assert.Equal(t, "January 2024", inv.PeriodLabel)
	assert.Equal(t, time.Date(2024, 2, 19, 9, 0, 0, 0, time.UTC), inv.DueAt)
	assert.Equal(t, "Ada Lovelace", inv.BillTo.Name)
	assert.True(t, inv.Subtotal.Equal(decimal.RequireFromString("0.91")))
	assert.True(t, inv.Tax.Equal(decimal.RequireFromString("0.18")))
	assert.True(t, inv.Total.Equal(decimal.RequireFromString("1.09")))

	require.Len(t, inv.Items, 1)
	assert.Equal(t, "Cloud services: January 2024", inv.Items[0].Description)
	assert.True(t, inv.Items[0].Amount.Equal(inv.Subtotal))

	assert.Contains(t, doc.HTML, inv.Number)
	assert.Contains(t, doc.HTML, "Ada Lovelace")
	assert.Contains(t, doc.HTML, "£0.91")
	assert.Contains(t, doc.HTML, "£1.09")
	assert.Contains(t, doc.HTML, "VAT (20%)")
	assert.Contains(t, doc.HTML, "20/01/2024")
	assert.Contains(t, doc.HTML, "19/02/2024")
	assert.Contains(t, doc.HTML, "Zeltra Connect")
}

func TestRenderInvoiceKeepsSuppliedItems(t *testing.T) {
	f := setup(t)

	items := []invoicedomain.LineItem{
		{Description: "EC2", Quantity: decimal.NewFromInt(1200), UnitPrice: decimal.NewFromInt(1), Amount: decimal.NewFromInt(1200)},
		{Description: "S3", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(3), Amount: decimal.NewFromInt(30)},
	}
	doc, err := f.invoices.RenderInvoice(context.Background(), invoicedomain.RenderInvoiceRequest{
		Period:      january,
		TotalAmount: decimal.NewFromInt(1234),
		Profile:     profile(),
		Items:       items,
	})
	require.NoError(t, err)

	assert.Len(t, doc.Invoice.Items, 2)
	assert.True(t, doc.Invoice.Subtotal.Equal(decimal.NewFromInt(1234)))
	assert.Contains(t, doc.HTML, "£1,234.00")
	assert.Contains(t, doc.HTML, "£1,200.00")
}

func TestRenderInvoiceNumbersAreDistinct(t *testing.T) {
	f := setup(t)

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		doc, err := f.invoices.RenderInvoice(context.Background(), invoicedomain.RenderInvoiceRequest{
			Period:      january,
			TotalAmount: decimal.NewFromInt(10),
			Profile:     profile(),
		})
		require.NoError(t, err)
		_, dup := seen[doc.Invoice.Number]
		require.False(t, dup, doc.Invoice.Number)
		seen[doc.Invoice.Number] = struct{}{}
	}
}

func TestRenderInvoiceProfileUnavailable(t *testing.T) {
	f := setup(t)

	_, err := f.invoices.RenderInvoice(context.Background(), invoicedomain.RenderInvoiceRequest{
		Period:      january,
		TotalAmount: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, apperror.ErrProfileUnavailable)

	_, err = f.invoices.RenderInvoice(context.Background(), invoicedomain.RenderInvoiceRequest{
		Period:      january,
		TotalAmount: decimal.NewFromInt(1),
		Profile:     &identitydomain.Profile{OwnerID: "U1", FullName: " "},
	})
	assert.ErrorIs(t, err, apperror.ErrProfileUnavailable)
	assert.ErrorIs(t, err, invoicedomain.ErrBlankProfile)
}

func TestRenderInvoiceBillToFallsBackToHandle(t *testing.T) {
	f := setup(t)

	doc, err := f.invoices.RenderInvoice(context.Background(), invoicedomain.RenderInvoiceRequest{
		Period:      january,
		TotalAmount: decimal.NewFromInt(1),
		Profile:     &identitydomain.Profile{OwnerID: "U1", Email: "grace@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "grace", doc.Invoice.BillTo.Name)
	assert.NotEmpty(t, doc.Invoice.BillTo.Name)
}

func TestRenderInvoiceValidation(t *testing.T) {
	f := setup(t)

	_, err := f.invoices.RenderInvoice(context.Background(), invoicedomain.RenderInvoiceRequest{
		TotalAmount: decimal.NewFromInt(1),
		Profile:     profile(),
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPeriod)

	_, err = f.invoices.RenderInvoice(context.Background(), invoicedomain.RenderInvoiceRequest{
		Period:      january,
		TotalAmount: decimal.NewFromInt(-1),
		Profile:     profile(),
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestRenderInvoiceTemplateError(t *testing.T) {
	broken, err := render.NewRendererFromTemplate(`{{.Unknown.Field}}`)
	require.NoError(t, err)
	f := setup(t, withRenderer(broken))

	doc, err := f.invoices.RenderInvoice(context.Background(), invoicedomain.RenderInvoiceRequest{
		Period:      january,
		TotalAmount: decimal.NewFromInt(1),
		Profile:     profile(),
	})
	assert.Error(t, err)
	assert.Nil(t, doc)
}

func TestIssueInvoice(t *testing.T) {
	f := setup(t)
	ctx := ownercontext.WithOwnerID(context.Background(), "U1")

	_, err := f.invoices.IssueInvoice(ctx, january)
	assert.ErrorIs(t, err, apperror.ErrProfileUnavailable)

	_, err = f.identity.UpsertProfile(ctx, identitydomain.UpsertProfileRequest{FullName: "Ada Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)

	_, err = f.invoices.IssueInvoice(ctx, january)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	for _, req := range []usagedomain.RecordUsageRequest{
		{ServiceType: "EC2", UsageType: "compute_hours", Quantity: decimal.NewFromInt(24), UnitCost: decimal.RequireFromString("0.034")},
		{ServiceType: "S3", UsageType: "storage_gb_hours", Quantity: decimal.NewFromInt(100), UnitCost: decimal.RequireFromString("0.00096")},
	} {
		req.BillingPeriod = &january
		_, err := f.usage.RecordUsage(ctx, req)
		require.NoError(t, err)
	}
	_, err = f.billing.GenerateBilling(ctx, january)
	require.NoError(t, err)

	doc, err := f.invoices.IssueInvoice(ctx, january)
	require.NoError(t, err)
	assert.True(t, doc.Invoice.Subtotal.Equal(decimal.RequireFromString("0.91")))
	require.Len(t, doc.Invoice.Items, 2)
	assert.Equal(t, "EC2", doc.Invoice.Items[0].Description)
	assert.Equal(t, "compute hours", doc.Invoice.Items[0].Detail)
	assert.Contains(t, doc.HTML, "Ada Lovelace")

	itemsTotal := decimal.Zero
	for _, item := range doc.Invoice.Items {
		itemsTotal = itemsTotal.Add(item.Amount)
	}
	assert.True(t, itemsTotal.Equal(doc.Invoice.Subtotal), "items %s subtotal %s", itemsTotal, doc.Invoice.Subtotal)
	assert.True(t, doc.Invoice.Items[0].Amount.Equal(decimal.RequireFromString("0.82")))
	assert.True(t, doc.Invoice.Items[1].Amount.Equal(decimal.RequireFromString("0.09")))

	// Usage recorded after aggregation falls back to one line for the summary total.
	_, err = f.usage.RecordUsage(ctx, usagedomain.RecordUsageRequest{
		ServiceType: "EC2", UsageType: "compute_hours",
		Quantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(1), BillingPeriod: &january,
	})
	require.NoError(t, err)
	doc, err = f.invoices.IssueInvoice(ctx, january)
	require.NoError(t, err)
	require.Len(t, doc.Invoice.Items, 1)
	assert.True(t, doc.Invoice.Items[0].Amount.Equal(decimal.RequireFromString("0.91")))

	summary, err := f.billing.GetSummary(ctx, january)
	require.NoError(t, err)
	assert.Equal(t, doc.Invoice.Number, summary.InvoiceNumber())
	assert.True(t, summary.TotalAmount.Equal(decimal.RequireFromString("0.91")))
}

func TestLineItemsFromUsageLargestRemainder(t *testing.T) {
	rows := []usagedomain.LineItem{
		{ServiceType: "A", Amount: decimal.RequireFromString("0.333")},
		{ServiceType: "B", Amount: decimal.RequireFromString("0.333")},
		{ServiceType: "C", Amount: decimal.RequireFromString("0.334")},
	}
	items, ok := lineItemsFromUsage(rows, decimal.NewFromInt(1))
	require.True(t, ok)

	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Amount)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(1)))
	assert.True(t, items[2].Amount.Equal(decimal.RequireFromString("0.34")))
	assert.True(t, items[0].Amount.Equal(decimal.RequireFromString("0.33")))

	_, ok = lineItemsFromUsage(rows, decimal.NewFromInt(2))
	assert.False(t, ok)

	items, ok = lineItemsFromUsage(nil, decimal.Zero)
	assert.True(t, ok)
	assert.Empty(t, items)
}

func TestExport(t *testing.T) {
	exporter := new(mockExporter)
	f := setup(t, withExporter(exporter))

	doc, err := f.invoices.RenderInvoice(context.Background(), invoicedomain.RenderInvoiceRequest{
		Period:      january,
		TotalAmount: decimal.NewFromInt(5),
		Profile:     profile(),
	})
	require.NoError(t, err)

	exporter.On("Invoice", mock.Anything, doc.Invoice).Return([]byte("%PDF-1.3"), nil).Once()

	out, err := f.invoices.Export(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.3"), out)
	exporter.AssertExpectations(t)

	_, err = f.invoices.Export(context.Background(), nil)
	assert.ErrorIs(t, err, invoicedomain.ErrEmptyDocument)
}

func TestExportWithoutExporter(t *testing.T) {
	f := setup(t)

	_, err := f.invoices.Export(context.Background(), &invoicedomain.Document{Invoice: invoicedomain.Invoice{Number: "ZC-1"}})
	assert.ErrorIs(t, err, errExporterMissing)
}
