// Package format renders invoice numbers, money and dates for display.
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

const (
	DefaultInvoiceNumberTemplate = "ZC-{YYYY}{MM}-{SEQ}"
	DateLayout                   = "02/01/2006"
)

var (
	ErrEmptyTemplate   = errors.New("invoice number template is empty")
	ErrInvalidSequence = errors.New("invalid invoice sequence")
)

// FormatInvoiceNumber expands {YYYY}, {YY}, {MM}, {DD}, {SEQ} and {SEQn}
// (zero-padded to n digits) in template. issuedAt is read in UTC.
func FormatInvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		return "", ErrEmptyTemplate
	}
	if seq <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidSequence, seq)
	}

	issuedAt = issuedAt.UTC()
	out := strings.NewReplacer(
		"{YYYY}", issuedAt.Format("2006"),
		"{YY}", issuedAt.Format("06"),
		"{MM}", issuedAt.Format("01"),
		"{DD}", issuedAt.Format("02"),
		"{SEQ}", strconv.FormatInt(seq, 10),
	).Replace(template)

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}

var currencySymbols = map[string]string{
	"GBP": "£",
	"USD": "$",
	"EUR": "€",
}

// FormatMoney renders amount with two decimals, thousands separators and the
// currency symbol, e.g. "£1,234.50". Unknown currencies are prefixed with
// their ISO code ("JPY 1,000.00").
func FormatMoney(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	digits := amount.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(digits, ".")
	grouped := groupThousands(intPart) + "." + frac

	sign := ""
	if amount.Round(2).IsNegative() {
		sign = "-"
	}

	if symbol, ok := currencySymbols[currency]; ok {
		return sign + symbol + grouped
	}
	if currency == "" {
		return sign + grouped
	}
	return sign + currency + " " + grouped
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatDate renders t as dd/mm/yyyy in UTC.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

// FormatPercent renders a fraction such as 0.2 as "20%".
func FormatPercent(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).Round(2).String() + "%"
}
