package render

import (
	"bytes"
	_ "embed"
	"html/template"

	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/zeltra/internal/invoice/domain"
	"github.com/smallbiznis/zeltra/internal/invoice/format"
)

//go:embed templates/invoice.html
var invoiceHTMLTemplate string

// Renderer turns an invoice view into a standalone HTML page.
type Renderer interface {
	RenderHTML(invoice invoicedomain.Invoice) (string, error)
}

type HTMLRenderer struct {
	tpl *template.Template
}

func NewRenderer() Renderer {
	return &HTMLRenderer{
		tpl: template.Must(template.New("invoice").Funcs(funcMap()).Parse(invoiceHTMLTemplate)),
	}
}

// NewRendererFromTemplate parses a custom page layout with the invoice helpers.
func NewRendererFromTemplate(text string) (Renderer, error) {
	tpl, err := template.New("invoice").Funcs(funcMap()).Parse(text)
	if err != nil {
		return nil, err
	}
	return &HTMLRenderer{tpl: tpl}, nil
}

func (r *HTMLRenderer) RenderHTML(invoice invoicedomain.Invoice) (string, error) {
	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, invoice); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"formatMoney":    format.FormatMoney,
		"formatDate":     format.FormatDate,
		"formatPercent":  format.FormatPercent,
		"formatQuantity": formatQuantity,
	}
}

func formatQuantity(value decimal.Decimal) string {
	return value.Round(4).String()
}
