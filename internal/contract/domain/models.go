// Package domain contains contracts, their priced components and the persons paying for them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
	"github.com/smallbiznis/invoiceengine/internal/billing/proration"
)

// ContractStatus represents contract lifecycle states.
//
// An active contract becomes Ended once a run has billed it through its end
// date and Terminated when it is deactivated early. Historic contracts are
// archived and accept no further changes.
type ContractStatus string

const (
	ContractStatusDraft      ContractStatus = "DRAFT"
	ContractStatusActive     ContractStatus = "ACTIVE"
	ContractStatusEnded      ContractStatus = "ENDED"
	ContractStatusTerminated ContractStatus = "TERMINATED"
	ContractStatusHistoric   ContractStatus = "HISTORIC"
)

// PricingType tells whether component prices cover a whole period or a single day.
type PricingType string

const (
	PricingPerPeriod PricingType = "PER_PERIOD"
	PricingPerDay    PricingType = "PER_DAY"
)

// Contract is the billing agreement invoiced once per period.
//
// DatePrevProlongation is the start of the last invoiced period and
// DateNextProlongation the start of the next one. A nil DateNextProlongation
// means the contract is fully invoiced. BaseAmount, VATAmount and TotalAmount
// always equal the sum over its currently attached components.
type Contract struct {
	ID                              snowflake.ID    `gorm:"primaryKey"`
	TenantID                        snowflake.ID    `gorm:"not null;index"`
	ContractTypeID                  snowflake.ID    `gorm:"not null;index"`
	Status                          ContractStatus  `gorm:"type:text;not null;default:'DRAFT'"`
	Description                     string          `gorm:"type:text"`
	InternalCustomerID              string          `gorm:"type:text"`
	ExternalCustomerID              string          `gorm:"type:text"`
	InvoicingPeriod                 string          `gorm:"type:text;not null"`
	InvoicingAmountOfDays           *int            `gorm:""`
	PricingType                     PricingType     `gorm:"type:text;not null;default:'PER_PERIOD'"`
	StartDate                       time.Time       `gorm:"type:date;not null"`
	EndDate                         *time.Time      `gorm:"type:date"`
	DatePrevProlongation            *time.Time      `gorm:"type:date"`
	DateNextProlongation            *time.Time      `gorm:"type:date;index"`
	GeneralLedgerDimensionContract1 string          `gorm:"type:text"`
	GeneralLedgerDimensionContract2 string          `gorm:"type:text"`
	Balance                         decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	BaseAmount                      decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	VATAmount                       decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	TotalAmount                     decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	CreatedAt                       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt                       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Contract) TableName() string { return "contracts" }

// Period returns the invoicing cadence.
func (c *Contract) Period() (calendar.Period, error) {
	return calendar.ParsePeriod(c.InvoicingPeriod, c.InvoicingAmountOfDays)
}

// ProrationMode maps the pricing type onto the proration rule.
func (c *Contract) ProrationMode() proration.Mode {
	if c.PricingType == PricingPerDay {
		return proration.PerDay
	}
	return proration.PerPeriod
}

// ApplyDelta is the only way contract aggregates change.
func (c *Contract) ApplyDelta(base, vat, total decimal.Decimal) {
	c.BaseAmount = c.BaseAmount.Add(base)
	c.VATAmount = c.VATAmount.Add(vat)
	c.TotalAmount = c.TotalAmount.Add(total)
}

// IsBilled reports whether at least one period has been invoiced.
func (c *Contract) IsBilled() bool {
	return c.DatePrevProlongation != nil
}

// IsClosed reports whether the contract is past billing and rejects edits.
func (c *Contract) IsClosed() bool {
	switch c.Status {
	case ContractStatusEnded, ContractStatusTerminated, ContractStatusHistoric:
		return true
	}
	return false
}

// IsDue reports whether the next period starts on or before day.
func (c *Contract) IsDue(day time.Time) bool {
	return c.Status == ContractStatusActive &&
		c.DateNextProlongation != nil &&
		!c.DateNextProlongation.After(day)
}

// Component is a priced line of a contract.
//
// Exactly one of BaseAmount or UnitAmount with NumberOfUnits is set. EndDate
// is the last day billed. A nil DateNextProlongation means the component is
// retired from billing.
type Component struct {
	ID                   snowflake.ID     `gorm:"primaryKey"`
	TenantID             snowflake.ID     `gorm:"not null;index"`
	ContractID           snowflake.ID     `gorm:"not null;index"`
	BaseComponentID      snowflake.ID     `gorm:"not null;index"`
	VATRateID            *snowflake.ID    `gorm:"index"`
	Description          string           `gorm:"type:text"`
	StartDate            time.Time        `gorm:"type:date;not null"`
	EndDate              *time.Time       `gorm:"type:date"`
	DatePrevProlongation *time.Time       `gorm:"type:date"`
	DateNextProlongation *time.Time       `gorm:"type:date;index"`
	BaseAmount           *decimal.Decimal `gorm:"type:numeric(14,2)"`
	UnitAmount           *decimal.Decimal `gorm:"type:numeric(14,2)"`
	NumberOfUnits        *decimal.Decimal `gorm:"type:numeric(14,4)"`
	UnitID               *string          `gorm:"type:text"`
	VATAmount            decimal.Decimal  `gorm:"type:numeric(14,2);not null;default:0"`
	TotalAmount          decimal.Decimal  `gorm:"type:numeric(14,2);not null;default:0"`
	ReplacedByID         *snowflake.ID    `gorm:"index"`
	CreatedAt            time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Component) TableName() string { return "contract_components" }

// IsUnitPriced reports whether the price is a unit amount times a quantity.
func (c *Component) IsUnitPriced() bool {
	return c.BaseAmount == nil && c.UnitAmount != nil && c.NumberOfUnits != nil
}

// ValidatePricing enforces that exactly one pricing mode is set.
func (c *Component) ValidatePricing() error {
	hasBase := c.BaseAmount != nil
	hasUnit := c.UnitAmount != nil || c.NumberOfUnits != nil
	switch {
	case hasBase && hasUnit:
		return ErrInvalidPricing
	case hasBase:
		return nil
	case c.UnitAmount != nil && c.NumberOfUnits != nil:
		return nil
	default:
		return ErrInvalidPricing
	}
}

// Net is the per-period amount before VAT.
func (c *Component) Net() decimal.Decimal {
	if c.IsUnitPriced() {
		return c.UnitAmount.Mul(*c.NumberOfUnits)
	}
	if c.BaseAmount != nil {
		return *c.BaseAmount
	}
	return decimal.Zero
}

// Pricing returns the full-period amounts used for proration.
func (c *Component) Pricing() proration.Amounts {
	amounts := proration.Amounts{VAT: c.VATAmount}
	if c.IsUnitPriced() {
		amounts.Unit = *c.UnitAmount
		amounts.Units = *c.NumberOfUnits
		return amounts
	}
	if c.BaseAmount != nil {
		amounts.Base = *c.BaseAmount
	}
	return amounts
}

// Contribution is what the component adds to its contract's aggregates.
func (c *Component) Contribution() (base, vat, total decimal.Decimal) {
	return c.Net(), c.VATAmount, c.TotalAmount
}

// IsBilled reports whether the component has appeared on an invoice.
func (c *Component) IsBilled() bool {
	return c.DatePrevProlongation != nil
}

// IsRetired reports whether billing has stopped for the component.
func (c *Component) IsRetired() bool {
	return c.DateNextProlongation == nil && c.DatePrevProlongation != nil
}

// PaymentMethod is how a contract person settles a collection.
type PaymentMethod string

const (
	PaymentMethodDirectDebit PaymentMethod = "DIRECT_DEBIT"
	PaymentMethodEmail       PaymentMethod = "EMAIL"
	PaymentMethodSMS         PaymentMethod = "SMS"
	PaymentMethodLetter      PaymentMethod = "LETTER"
	PaymentMethodInvoice     PaymentMethod = "INVOICE"
)

// ContractPerson is a payer of a share of every invoice of a contract.
type ContractPerson struct {
	ID                snowflake.ID    `gorm:"primaryKey"`
	TenantID          snowflake.ID    `gorm:"not null;index"`
	ContractID        snowflake.ID    `gorm:"not null;index"`
	Type              string          `gorm:"type:text"`
	StartDate         time.Time       `gorm:"type:date;not null"`
	EndDate           *time.Time      `gorm:"type:date"`
	Name              string          `gorm:"type:text;not null"`
	Address           string          `gorm:"type:text"`
	City              string          `gorm:"type:text"`
	Email             string          `gorm:"type:text"`
	Phone             string          `gorm:"type:text"`
	PaymentMethod     PaymentMethod   `gorm:"type:text;not null"`
	IBAN              string          `gorm:"column:iban;type:text"`
	Mandate           string          `gorm:"type:text"`
	PercentageOfTotal decimal.Decimal `gorm:"type:numeric(7,4);not null"`
	PaymentDay        int             `gorm:"not null;default:1"`
	CreatedAt         time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ContractPerson) TableName() string { return "contract_persons" }

// ActiveOn reports whether the person pays on day.
func (p *ContractPerson) ActiveOn(day time.Time) bool {
	if p.StartDate.After(day) {
		return false
	}
	return p.EndDate == nil || !p.EndDate.Before(day)
}
