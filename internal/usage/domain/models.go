// Package domain contains persistence models for metered usage.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Well-known service identifiers. Any other non-empty identifier is accepted.
const (
	ServiceEC2        = "EC2"
	ServiceS3         = "S3"
	ServiceRDS        = "RDS"
	ServiceLambda     = "Lambda"
	ServiceCloudFront = "CloudFront"
	ServiceRoute53    = "Route53"
	ServiceCloudWatch = "CloudWatch"
	ServiceIAM        = "IAM"
)

// Well-known usage types.
const (
	UsageComputeHours   = "compute_hours"
	UsageStorageGBHours = "storage_gb_hours"
	UsageDataTransferGB = "data_transfer_gb"
)

// UsageEvent stores a single unit of metered activity. Rows are append-only.
type UsageEvent struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id,string"`
	OwnerID       string            `gorm:"type:text;not null;index:idx_usage_owner_period,priority:1" json:"owner_id"`
	ServiceType   string            `gorm:"type:text;not null" json:"service_type"`
	ResourceID    *string           `gorm:"type:text" json:"resource_id,omitempty"`
	UsageType     string            `gorm:"type:text;not null" json:"usage_type"`
	Quantity      decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"quantity"`
	UnitCost      decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"unit_cost"`
	BillingPeriod time.Time         `gorm:"type:date;not null;index:idx_usage_owner_period,priority:2" json:"billing_period"`
	RecordedAt    time.Time         `gorm:"not null" json:"recorded_at"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }

// Cost returns quantity × unit cost without rounding.
func (e UsageEvent) Cost() decimal.Decimal {
	return e.Quantity.Mul(e.UnitCost)
}
