package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	identitydomain "github.com/smallbiznis/zeltra/internal/identity/domain"
)

type RenderInvoiceRequest struct {
	Period      time.Time
	TotalAmount decimal.Decimal
	Profile     *identitydomain.Profile
	// Items defaults to a single line covering TotalAmount when empty.
	Items []LineItem
}

type Service interface {
	RenderInvoice(ctx context.Context, req RenderInvoiceRequest) (*Document, error)
	IssueInvoice(ctx context.Context, billingPeriod time.Time) (*Document, error)
	Export(ctx context.Context, doc *Document) ([]byte, error)
}

// Exporter turns a rendered invoice into a printable file.
type Exporter interface {
	Invoice(ctx context.Context, invoice Invoice) ([]byte, error)
}

var (
	ErrInvalidPeriod  = errors.New("invalid_billing_period")
	ErrInvalidTotal   = errors.New("invalid_total_amount")
	ErrMissingProfile = errors.New("missing_profile")
	ErrBlankProfile   = errors.New("profile_display_identity_blank")
	ErrEmptyDocument  = errors.New("empty_document")
)
