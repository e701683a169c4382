// Package domain contains the tenant catalog: contract types, base components and VAT rates.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ContractType classifies contracts and supplies the receivable account of their invoices.
type ContractType struct {
	ID                  snowflake.ID `gorm:"primaryKey"`
	TenantID            snowflake.ID `gorm:"not null;index;uniqueIndex:ux_contract_type_code"`
	Code                string       `gorm:"type:text;not null;uniqueIndex:ux_contract_type_code"`
	Description         string       `gorm:"type:text"`
	GeneralLedgerDebit  string       `gorm:"type:text"`
	GeneralLedgerCredit string       `gorm:"type:text"`
	CreatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ContractType) TableName() string { return "contract_types" }

// BaseComponent is the catalog item a contract component prices.
type BaseComponent struct {
	ID                     snowflake.ID `gorm:"primaryKey"`
	TenantID               snowflake.ID `gorm:"not null;index;uniqueIndex:ux_base_component_code"`
	Code                   string       `gorm:"type:text;not null;uniqueIndex:ux_base_component_code"`
	Description            string       `gorm:"type:text"`
	GeneralLedgerDebit     string       `gorm:"type:text"`
	GeneralLedgerCredit    string       `gorm:"type:text"`
	GeneralLedgerDimension string       `gorm:"type:text"`
	UnitID                 *string      `gorm:"type:text"`
	CreatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BaseComponent) TableName() string { return "base_components" }

// VATRate is a dated VAT percentage for one VAT type.
//
// EndDate is exclusive: the rate applies to periods starting before it. At
// most one rate per (tenant, type) is open ended.
type VATRate struct {
	ID                     snowflake.ID    `gorm:"primaryKey"`
	TenantID               snowflake.ID    `gorm:"not null;index"`
	Type                   int             `gorm:"not null;index"`
	Description            string          `gorm:"type:text"`
	StartDate              time.Time       `gorm:"type:date;not null"`
	EndDate                *time.Time      `gorm:"type:date"`
	Percentage             decimal.Decimal `gorm:"type:numeric(7,4);not null"`
	GeneralLedgerAccount   string          `gorm:"type:text"`
	GeneralLedgerDimension string          `gorm:"type:text"`
	SuccessorID            *snowflake.ID   `gorm:"index"`
	CreatedAt              time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (VATRate) TableName() string { return "vat_rates" }

var hundred = decimal.NewFromInt(100)

// Apply returns the VAT owed on net, rounded to places.
func (r *VATRate) Apply(net decimal.Decimal, places int32) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return net.Mul(r.Percentage).Div(hundred).Round(places)
}

// ClosedBefore reports whether the rate stopped applying on or before day.
func (r *VATRate) ClosedBefore(day time.Time) bool {
	return r.EndDate != nil && !r.EndDate.After(day)
}

// IsOpen reports whether the rate has no end date.
func (r *VATRate) IsOpen() bool {
	return r.EndDate == nil
}
