// Package pdf exports rendered invoices as PDF documents.
package pdf

import (
	"context"

	invoicedomain "github.com/smallbiznis/zeltra/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Provider struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Provider {
	return &Provider{log: log.Named("pdf.provider")}
}

// Invoice lays out the invoice on A4 pages and returns the PDF bytes.
func (p *Provider) Invoice(ctx context.Context, invoice invoicedomain.Invoice) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := buildInvoice(invoice)
	if err != nil {
		return nil, err
	}
	p.log.Debug("invoice pdf generated",
		zap.String("invoice_number", invoice.Number),
		zap.Int("bytes", len(out)),
	)
	return out, nil
}

var Module = fx.Module("providers.pdf",
	fx.Provide(
		fx.Annotate(New, fx.As(new(invoicedomain.Exporter))),
	),
)
