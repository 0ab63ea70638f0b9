// Package domain contains the owner identity model consumed by billing.
package domain

import (
	"strings"
	"time"
)

// Profile stores the display identity used on invoices.
type Profile struct {
	OwnerID   string    `gorm:"primaryKey;type:text" json:"owner_id"`
	FullName  string    `gorm:"type:text" json:"full_name"`
	Username  string    `gorm:"type:text" json:"username"`
	Email     string    `gorm:"type:text" json:"email"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Profile) TableName() string { return "profiles" }

// DisplayName resolves the bill-to name: full name, then username, then the email local part.
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(p.FullName); name != "" {
		return name
	}
	return p.Handle()
}

// Handle resolves the account handle: username, then the email local part.
func (p Profile) Handle() string {
	if username := strings.TrimSpace(p.Username); username != "" {
		return username
	}
	email := strings.TrimSpace(p.Email)
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

// Owner is the authenticated caller together with its profile.
type Owner struct {
	ID      string
	Profile Profile
}
