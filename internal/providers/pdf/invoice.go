package pdf

import (
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	invoicedomain "github.com/smallbiznis/zeltra/internal/invoice/domain"
	"github.com/smallbiznis/zeltra/internal/invoice/format"
)

func buildInvoice(invoice invoicedomain.Invoice) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)
	issuer := invoice.Issuer
	m.AddRow(12,
		text.NewCol(6, "Invoice", props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(6, issuer.Name, props.Text{Size: 14, Style: fontstyle.Bold, Align: align.Right}),
	)

	issuerLines := append([]string{issuer.Tagline}, issuer.Address...)
	if issuer.VATNumber != "" {
		issuerLines = append(issuerLines, "VAT: "+issuer.VATNumber)
	}
	issuerLines = append(issuerLines, issuer.Email, issuer.Phone)

	m.AddRow(30,
		col.New(6).Add(
			text.New("Invoice number: "+invoice.Number, props.Text{Top: 0}),
			text.New("Date of issue: "+format.FormatDate(invoice.IssuedAt), props.Text{Top: 5}),
			text.New("Date due: "+format.FormatDate(invoice.DueAt), props.Text{Top: 10}),
			text.New("Billing period: "+invoice.PeriodLabel, props.Text{Top: 15}),
		),
		stackedCol(6, nonEmpty(issuerLines), props.Text{Size: 9, Align: align.Right}),
	)

	billTo := col.New(12).Add(text.New("Bill to", props.Text{Style: fontstyle.Bold}))
	for i, line := range billToLines(invoice.BillTo) {
		billTo.Add(text.New(line, props.Text{Top: float64(i+1) * 5}))
	}
	m.AddRow(27, billTo)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range invoice.Items {
		description := item.Description
		if item.Detail != "" {
			description += " (" + item.Detail + ")"
		}
		m.AddRow(8,
			text.NewCol(6, description, props.Text{Size: 9}),
			text.NewCol(2, item.Quantity.Round(4).String(), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, format.FormatMoney(item.UnitPrice, invoice.Currency), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, format.FormatMoney(item.Amount, invoice.Currency), props.Text{Size: 9, Align: align.Right}),
		)
	}

	totals := []struct {
		label string
		value string
		bold  bool
	}{
		{"Subtotal", format.FormatMoney(invoice.Subtotal, invoice.Currency), false},
		{invoice.TaxLabel + " (" + format.FormatPercent(invoice.TaxRate) + ")", format.FormatMoney(invoice.Tax, invoice.Currency), false},
		{"Total", format.FormatMoney(invoice.Total, invoice.Currency), true},
	}
	for _, row := range totals {
		style := fontstyle.Normal
		if row.bold {
			style = fontstyle.Bold
		}
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, row.label, props.Text{Size: 9, Style: style}),
			text.NewCol(2, row.value, props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}

	if invoice.PaymentTerms != "" {
		m.AddRow(15,
			text.NewCol(12, invoice.PaymentTerms, props.Text{Size: 8, Top: 8}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

// stackedCol places each line below the previous one inside a single column.
func stackedCol(size int, lines []string, style props.Text) core.Col {
	c := col.New(size)
	for i, line := range lines {
		p := style
		p.Top = float64(i) * 4
		c.Add(text.New(line, p))
	}
	return c
}

// billToLines lists the customer block in the order the HTML invoice prints it.
func billToLines(b invoicedomain.BillTo) []string {
	lines := []string{b.Name}
	if username := strings.TrimSpace(b.Username); username != "" {
		lines = append(lines, "@"+username)
	}
	return nonEmpty(append(lines, b.Email))
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
