package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PostKind tells which side of an invoice a general ledger post records.
type PostKind string

const (
	PostKindDebtor   PostKind = "DEBTOR"
	PostKindProceeds PostKind = "PROCEEDS"
	PostKindVAT      PostKind = "VAT"
)

// GeneralLedgerPost is a single debit or credit booking derived from an invoice.
//
// Exactly one of AmountDebit and AmountCredit is non-zero.
type GeneralLedgerPost struct {
	ID                              snowflake.ID    `gorm:"primaryKey"`
	TenantID                        snowflake.ID    `gorm:"not null;index"`
	InvoiceID                       snowflake.ID    `gorm:"not null;index"`
	InvoiceLineID                   *snowflake.ID   `gorm:"index"`
	InvoiceNumber                   int64           `gorm:"not null"`
	Kind                            PostKind        `gorm:"type:text;not null"`
	Date                            time.Time       `gorm:"type:date;not null;index"`
	Description                     string          `gorm:"type:text"`
	GeneralLedgerAccount            string          `gorm:"type:text"`
	GeneralLedgerDimensionComponent string          `gorm:"type:text"`
	GeneralLedgerDimensionContract1 string          `gorm:"type:text"`
	GeneralLedgerDimensionContract2 string          `gorm:"type:text"`
	GeneralLedgerDimensionVAT       string          `gorm:"column:general_ledger_dimension_vat;type:text"`
	AmountDebit                     decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	AmountCredit                    decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	CreatedAt                       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (GeneralLedgerPost) TableName() string { return "general_ledger_posts" }

// Signed returns debit minus credit.
func (p *GeneralLedgerPost) Signed() decimal.Decimal {
	return p.AmountDebit.Sub(p.AmountCredit)
}
