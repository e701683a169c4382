// Package domain contains the tenant model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DefaultDaysUntilInvoiceExpiration is used when a tenant does not set its own term.
const DefaultDaysUntilInvoiceExpiration = 14

// Tenant is an isolated customer organization operating the billing engine.
//
// LastInvoiceNumber is the tenant-owned invoice sequence. It is only advanced
// inside a transaction that holds the tenant row lock.
type Tenant struct {
	ID                         snowflake.ID `gorm:"primaryKey"`
	Name                       string       `gorm:"type:text;not null"`
	NumberOfContracts          int64        `gorm:"not null;default:0"`
	LastInvoiceNumber          int64        `gorm:"not null;default:0"`
	DaysUntilInvoiceExpiration int          `gorm:"not null;default:14"`
	CreatedAt                  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt                  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// NextInvoiceNumber advances the invoice sequence and returns the new number.
func (t *Tenant) NextInvoiceNumber() int64 {
	t.LastInvoiceNumber++
	return t.LastInvoiceNumber
}

// ReleaseInvoiceNumber hands back number when it is still the most recent one issued.
func (t *Tenant) ReleaseInvoiceNumber(number int64) bool {
	if number != t.LastInvoiceNumber {
		return false
	}
	t.LastInvoiceNumber--
	return true
}
