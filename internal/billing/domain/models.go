package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SummaryStatus tracks an owner's bill for one period.
type SummaryStatus string

const (
	SummaryStatusPending   SummaryStatus = "pending"
	SummaryStatusGenerated SummaryStatus = "generated"
	SummaryStatusPaid      SummaryStatus = "paid"
	SummaryStatusOverdue   SummaryStatus = "overdue"
)

var summaryTransitions = map[SummaryStatus][]SummaryStatus{
	SummaryStatusPending:   {SummaryStatusGenerated},
	SummaryStatusGenerated: {SummaryStatusGenerated, SummaryStatusPaid, SummaryStatusOverdue},
	SummaryStatusOverdue:   {SummaryStatusPaid},
}

// CanTransition reports whether a summary in status s may move to next.
func (s SummaryStatus) CanTransition(next SummaryStatus) bool {
	for _, allowed := range summaryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Closed reports whether aggregation may no longer rewrite the summary.
func (s SummaryStatus) Closed() bool {
	return s == SummaryStatusPaid || s == SummaryStatusOverdue
}

func (s SummaryStatus) Valid() bool {
	switch s {
	case SummaryStatusPending, SummaryStatusGenerated, SummaryStatusPaid, SummaryStatusOverdue:
		return true
	}
	return false
}

// Keys stored in BillingSummary.InvoiceData.
const (
	InvoiceDataNumber        = "invoice_number"
	InvoiceDataGeneratedAt   = "generated_at"
	InvoiceDataBillingPeriod = "billing_period"
)

// BillingSummary is the authoritative monthly total for one owner.
type BillingSummary struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id,string"`
	OwnerID       string            `gorm:"type:text;not null;uniqueIndex:ux_billing_summary_owner_period,priority:1" json:"owner_id"`
	BillingPeriod time.Time         `gorm:"type:date;not null;uniqueIndex:ux_billing_summary_owner_period,priority:2" json:"billing_period"`
	TotalAmount   decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"total_amount"`
	Currency      string            `gorm:"type:text;not null" json:"currency"`
	Status        SummaryStatus     `gorm:"type:text;not null" json:"status"`
	InvoiceData   datatypes.JSONMap `gorm:"type:jsonb" json:"invoice_data,omitempty"`
	GeneratedAt   time.Time         `gorm:"not null" json:"generated_at"`
	UpdatedAt     time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (BillingSummary) TableName() string { return "billing_summaries" }

// InvoiceNumber returns the recorded invoice number, if any.
func (s BillingSummary) InvoiceNumber() string {
	if s.InvoiceData == nil {
		return ""
	}
	number, _ := s.InvoiceData[InvoiceDataNumber].(string)
	return number
}

// ServiceBreakdown is one service's share of a period's spend.
type ServiceBreakdown struct {
	ServiceType string          `json:"service_type"`
	Total       decimal.Decimal `json:"total"`
	Percentage  decimal.Decimal `json:"percentage"`
}

type CostBreakdown struct {
	BillingPeriod time.Time          `json:"billing_period"`
	Currency      string             `json:"currency"`
	Total         decimal.Decimal    `json:"total"`
	Services      []ServiceBreakdown `json:"services"`
}

type BudgetAlertLevel string

const (
	BudgetAlertWarning  BudgetAlertLevel = "warning"
	BudgetAlertExceeded BudgetAlertLevel = "exceeded"
)

type BudgetAlert struct {
	Level   BudgetAlertLevel `json:"level"`
	Message string           `json:"message"`
}

type BudgetStatus struct {
	BillingPeriod time.Time       `json:"billing_period"`
	Currency      string          `json:"currency"`
	Spent         decimal.Decimal `json:"spent"`
	Budget        decimal.Decimal `json:"budget"`
	Remaining     decimal.Decimal `json:"remaining"`
	UsedRatio     decimal.Decimal `json:"used_ratio"`
	Alerts        []BudgetAlert   `json:"alerts"`
}
