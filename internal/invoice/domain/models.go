// Package domain contains the invoice view rendered from a billing summary.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Issuer is the seller block printed in the invoice header.
type Issuer struct {
	Name      string
	Tagline   string
	Address   []string
	VATNumber string
	Email     string
	Phone     string
}

// BillTo is the customer block resolved from the owner's profile.
type BillTo struct {
	Name     string
	Username string
	Email    string
}

// LineItem is one row of the itemized table.
type LineItem struct {
	Description string
	Detail      string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
}

// Invoice is derived on demand and never persisted. Only its number is
// recorded back on the billing summary.
type Invoice struct {
	Number       string
	IssuedAt     time.Time
	DueAt        time.Time
	Period       time.Time
	PeriodLabel  string
	Currency     string
	Issuer       Issuer
	BillTo       BillTo
	Items        []LineItem
	Subtotal     decimal.Decimal
	TaxLabel     string
	TaxRate      decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
	PaymentTerms string
}

// Document pairs the invoice view with its rendered HTML.
type Document struct {
	Invoice Invoice
	HTML    string
}
