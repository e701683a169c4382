// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceKind separates scheduled invoices from corrections.
type InvoiceKind string

const (
	InvoiceKindRegular    InvoiceKind = "REGULAR"
	InvoiceKindCorrection InvoiceKind = "CORRECTION"
)

// Invoice is issued once per contract per billed period or correction event.
type Invoice struct {
	ID                   snowflake.ID      `gorm:"primaryKey"`
	TenantID             snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_invoice_number"`
	ContractID           snowflake.ID      `gorm:"not null;index"`
	InvoiceNumber        int64             `gorm:"not null;uniqueIndex:ux_invoice_number"`
	Kind                 InvoiceKind       `gorm:"type:text;not null;default:'REGULAR'"`
	Description          string            `gorm:"type:text"`
	InternalCustomerID   string            `gorm:"type:text"`
	ExternalCustomerID   string            `gorm:"type:text"`
	Date                 time.Time         `gorm:"type:date;not null;index"`
	ExpirationDate       time.Time         `gorm:"type:date;not null"`
	PeriodStart          *time.Time        `gorm:"type:date"`
	PeriodEnd            *time.Time        `gorm:"type:date"`
	GeneralLedgerAccount string            `gorm:"type:text"`
	BaseAmount           decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	VATAmount            decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	TotalAmount          decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	Balance              decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	Metadata             datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// LineKind tells regular billing apart from correction reversals and rebills.
type LineKind string

const (
	LineKindRegular  LineKind = "REGULAR"
	LineKindReversal LineKind = "REVERSAL"
	LineKindRebill   LineKind = "REBILL"
)

// InvoiceLine is one component's slice of an invoice.
//
// PeriodStart and PeriodEnd bound the billed days with PeriodEnd exclusive.
// The GL fields snapshot the accounts and dimensions at the time of billing.
type InvoiceLine struct {
	ID                              snowflake.ID     `gorm:"primaryKey"`
	TenantID                        snowflake.ID     `gorm:"not null;index"`
	InvoiceID                       snowflake.ID     `gorm:"not null;index"`
	ComponentID                     snowflake.ID     `gorm:"not null;index"`
	Kind                            LineKind         `gorm:"type:text;not null;default:'REGULAR'"`
	Description                     string           `gorm:"type:text"`
	InvoiceDate                     time.Time        `gorm:"type:date;not null"`
	PeriodStart                     time.Time        `gorm:"type:date;not null"`
	PeriodEnd                       time.Time        `gorm:"type:date;not null"`
	VATType                         *int             `gorm:""`
	VATRateID                       *snowflake.ID    `gorm:""`
	BaseAmount                      decimal.Decimal  `gorm:"type:numeric(14,2);not null;default:0"`
	VATAmount                       decimal.Decimal  `gorm:"type:numeric(14,2);not null;default:0"`
	TotalAmount                     decimal.Decimal  `gorm:"type:numeric(14,2);not null;default:0"`
	UnitPrice                       *decimal.Decimal `gorm:"type:numeric(14,2)"`
	NumberOfUnits                   *decimal.Decimal `gorm:"type:numeric(14,4)"`
	UnitID                          *string          `gorm:"type:text"`
	GeneralLedgerAccount            string           `gorm:"type:text"`
	GeneralLedgerDimensionComponent string           `gorm:"type:text"`
	GeneralLedgerDimensionContract1 string           `gorm:"type:text"`
	GeneralLedgerDimensionContract2 string           `gorm:"type:text"`
	GeneralLedgerAccountVAT         string           `gorm:"column:general_ledger_account_vat;type:text"`
	GeneralLedgerDimensionVAT       string           `gorm:"column:general_ledger_dimension_vat;type:text"`
	CreatedAt                       time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceLine) TableName() string { return "invoice_lines" }

// Net is the line amount before VAT.
func (l *InvoiceLine) Net() decimal.Decimal {
	return l.TotalAmount.Sub(l.VATAmount)
}

// Collection is the share of an invoice one contract person is asked to pay.
type Collection struct {
	ID               snowflake.ID    `gorm:"primaryKey"`
	TenantID         snowflake.ID    `gorm:"not null;index"`
	InvoiceID        snowflake.ID    `gorm:"not null;index"`
	ContractPersonID snowflake.ID    `gorm:"not null;index"`
	InvoiceNumber    int64           `gorm:"not null"`
	Date             time.Time       `gorm:"type:date;not null;index"`
	Name             string          `gorm:"type:text"`
	Address          string          `gorm:"type:text"`
	City             string          `gorm:"type:text"`
	Email            string          `gorm:"type:text"`
	PaymentMethod    string          `gorm:"type:text;not null;index"`
	PaymentDay       int             `gorm:"not null"`
	IBAN             string          `gorm:"column:iban;type:text"`
	Mandate          string          `gorm:"type:text"`
	Amount           decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CreatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Collection) TableName() string { return "collections" }
