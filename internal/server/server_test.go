package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/zeltra/internal/billing/domain"
	"github.com/smallbiznis/zeltra/internal/config"
	identitydomain "github.com/smallbiznis/zeltra/internal/identity/domain"
	invoicedomain "github.com/smallbiznis/zeltra/internal/invoice/domain"
	"github.com/smallbiznis/zeltra/internal/ownercontext"
	usagedomain "github.com/smallbiznis/zeltra/internal/usage/domain"
	"github.com/smallbiznis/zeltra/pkg/apperror"
	"github.com/smallbiznis/zeltra/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var january = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func owner(ctx context.Context) string {
	id, _ := ownercontext.OwnerIDFromContext(ctx)
	return id
}

type mockUsage struct {
	mock.Mock
	usagedomain.Service
}

func (m *mockUsage) RecordUsage(ctx context.Context, req usagedomain.RecordUsageRequest) (*usagedomain.UsageEvent, error) {
	args := m.Called(owner(ctx), req)
	event, _ := args.Get(0).(*usagedomain.UsageEvent)
	return event, args.Error(1)
}

func (m *mockUsage) ListUsage(ctx context.Context, req usagedomain.ListUsageRequest) ([]usagedomain.UsageEvent, error) {
	args := m.Called(owner(ctx), req)
	events, _ := args.Get(0).([]usagedomain.UsageEvent)
	return events, args.Error(1)
}

type mockBilling struct {
	mock.Mock
	billingdomain.Service
}

func (m *mockBilling) GenerateBilling(ctx context.Context, p time.Time) (*billingdomain.BillingSummary, error) {
	args := m.Called(owner(ctx), p)
	summary, _ := args.Get(0).(*billingdomain.BillingSummary)
	return summary, args.Error(1)
}

func (m *mockBilling) ListSummariesByYear(ctx context.Context, year int) ([]billingdomain.BillingSummary, error) {
	args := m.Called(owner(ctx), year)
	items, _ := args.Get(0).([]billingdomain.BillingSummary)
	return items, args.Error(1)
}

type mockInvoice struct {
	mock.Mock
	invoicedomain.Service
}

func (m *mockInvoice) IssueInvoice(ctx context.Context, p time.Time) (*invoicedomain.Document, error) {
	args := m.Called(owner(ctx), p)
	doc, _ := args.Get(0).(*invoicedomain.Document)
	return doc, args.Error(1)
}

func (m *mockInvoice) Export(ctx context.Context, doc *invoicedomain.Document) ([]byte, error) {
	args := m.Called(doc)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

type mockIdentity struct {
	mock.Mock
	identitydomain.Service
}

type testServer struct {
	engine   *gin.Engine
	usage    *mockUsage
	billing  *mockBilling
	invoices *mockInvoice
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := NewEngine(EngineParams{
		Cfg:      config.Config{Environment: "test"},
		Log:      zap.NewNop(),
		Gatherer: prometheus.NewRegistry(),
	})
	ts := testServer{
		engine:   engine,
		usage:    new(mockUsage),
		billing:  new(mockBilling),
		invoices: new(mockInvoice),
	}
	NewServer(ServerParams{
		Gin:         engine,
		Log:         zap.NewNop(),
		IdentitySvc: new(mockIdentity),
		Usagesvc:    ts.usage,
		BillingSvc:  ts.billing,
		InvoiceSvc:  ts.invoices,
	})
	return ts
}

func (ts testServer) do(method, path, ownerID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if ownerID != "" {
		req.Header.Set(HeaderOwnerID, ownerID)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthAndCorrelation(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(correlation.HeaderName, "cid-123")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cid-123", rec.Header().Get(correlation.HeaderName))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecordUsage(t *testing.T) {
	ts := newTestServer(t)

	ts.usage.On("RecordUsage", "U1", mock.MatchedBy(func(req usagedomain.RecordUsageRequest) bool {
		return req.ServiceType == "EC2" &&
			req.Quantity.Equal(decimal.NewFromInt(24)) &&
			req.BillingPeriod != nil && req.BillingPeriod.Equal(january)
	})).Return(&usagedomain.UsageEvent{OwnerID: "U1", ServiceType: "EC2"}, nil).Once()

	rec := ts.do(http.MethodPost, "/v1/usage", "U1",
		`{"service_type":"EC2","usage_type":"compute_hours","quantity":"24","unit_cost":"0.034","billing_period":"2024-01"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"owner_id":"U1"`)
	ts.usage.AssertExpectations(t)
}

func TestRecordUsageErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/usage", "U1", `{"quantity":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Type)

	rec = ts.do(http.MethodPost, "/v1/usage", "U1", `{"service_type":"EC2","billing_period":"January"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.usage.On("RecordUsage", "", mock.Anything).
		Return(nil, apperror.NotAuthenticated(identitydomain.ErrMissingOwner)).Once()
	rec = ts.do(http.MethodPost, "/v1/usage", "", `{"service_type":"EC2","usage_type":"compute_hours"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "not_authenticated", decodeError(t, rec).Type)

	ts.usage.On("RecordUsage", "U1", mock.Anything).
		Return(nil, apperror.Validation(usagedomain.ErrInvalidQuantity)).Once()
	rec = ts.do(http.MethodPost, "/v1/usage", "U1", `{"service_type":"EC2","usage_type":"compute_hours","quantity":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_quantity", decodeError(t, rec).Code)
}

func TestListUsageEmpty(t *testing.T) {
	ts := newTestServer(t)

	ts.usage.On("ListUsage", "U1", mock.Anything).Return(nil, nil).Once()

	rec := ts.do(http.MethodGet, "/v1/usage?period=2024-01-15", "U1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestGenerateBilling(t *testing.T) {
	ts := newTestServer(t)

	ts.billing.On("GenerateBilling", "U1", january).Return(&billingdomain.BillingSummary{
		OwnerID:     "U1",
		TotalAmount: decimal.RequireFromString("0.91"),
		Status:      billingdomain.SummaryStatusGenerated,
	}, nil).Once()

	rec := ts.do(http.MethodPost, "/v1/billing/2024-01/generate", "U1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_amount":"0.91"`)

	ts.billing.On("GenerateBilling", "U1", january).
		Return(nil, apperror.Persistence(context.DeadlineExceeded)).Once()
	rec = ts.do(http.MethodPost, "/v1/billing/2024-01/generate", "U1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "persistence_error", decodeError(t, rec).Type)

	rec = ts.do(http.MethodPost, "/v1/billing/2024-13/generate", "U1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSummariesByYear(t *testing.T) {
	ts := newTestServer(t)

	ts.billing.On("ListSummariesByYear", "U1", 2024).Return([]billingdomain.BillingSummary{{OwnerID: "U1"}}, nil).Once()

	rec := ts.do(http.MethodGet, "/v1/billing?year=2024", "U1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	ts.billing.AssertExpectations(t)

	rec = ts.do(http.MethodGet, "/v1/billing?year=abc", "U1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetInvoice(t *testing.T) {
	ts := newTestServer(t)

	doc := &invoicedomain.Document{
		Invoice: invoicedomain.Invoice{Number: "ZC-202401-9"},
		HTML:    "<html>ZC-202401-9</html>",
	}
	ts.invoices.On("IssueInvoice", "U1", january).Return(doc, nil)
	ts.invoices.On("Export", doc).Return([]byte("%PDF-1.3"), nil).Once()

	rec := ts.do(http.MethodGet, "/v1/invoices/2024-01", "U1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ZC-202401-9", rec.Header().Get("X-Invoice-Number"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = ts.do(http.MethodGet, "/v1/invoices/2024-01/pdf", "U1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.3", rec.Body.String())
}

func TestGetInvoiceProfileUnavailable(t *testing.T) {
	ts := newTestServer(t)

	ts.invoices.On("IssueInvoice", "U1", january).
		Return(nil, apperror.ProfileUnavailable(identitydomain.ErrProfileNotFound)).Once()

	rec := ts.do(http.MethodGet, "/v1/invoices/2024-01", "U1", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "profile_unavailable", decodeError(t, rec).Type)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/v2/nothing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{apperror.Validation(errors.New("x")), http.StatusBadRequest, "validation_error"},
		{apperror.NotAuthenticated(errors.New("x")), http.StatusUnauthorized, "not_authenticated"},
		{apperror.Persistence(errors.New("x")), http.StatusInternalServerError, "persistence_error"},
		{apperror.ProfileUnavailable(errors.New("x")), http.StatusUnprocessableEntity, "profile_unavailable"},
		{apperror.NotFound(errors.New("x")), http.StatusNotFound, "not_found"},
		{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.typ)
		assert.Equal(t, tc.typ, payload.Type)
	}
}
