package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Service interface {
	CreateContract(ctx context.Context, req CreateContractRequest) (*Contract, error)
	UpdateContract(ctx context.Context, id snowflake.ID, req UpdateContractRequest) (*Contract, error)
	DeleteContract(ctx context.Context, id snowflake.ID) error
	GetContract(ctx context.Context, id snowflake.ID) (*Contract, error)

	AddComponent(ctx context.Context, contractID snowflake.ID, req ComponentRequest) (*ComponentResult, error)
	UpdateComponent(ctx context.Context, id snowflake.ID, req ComponentRequest) (*Component, error)
	DeleteComponent(ctx context.Context, id snowflake.ID) error
	ListComponents(ctx context.Context, contractID snowflake.ID) ([]*Component, error)

	SetContractPersons(ctx context.Context, contractID snowflake.ID, req []ContractPersonRequest) ([]*ContractPerson, error)

	ActivateContract(ctx context.Context, id snowflake.ID) (*Contract, error)
	ArchiveContract(ctx context.Context, id snowflake.ID) (*Contract, error)
	DeactivateContract(ctx context.Context, id snowflake.ID, endDate time.Time) (*DeactivationResult, error)
	DeactivateComponent(ctx context.Context, id snowflake.ID, endDate time.Time) (*DeactivationResult, error)
}

type CreateContractRequest struct {
	ContractTypeID                  snowflake.ID `json:"contract_type_id" validate:"required"`
	Description                     string       `json:"description" validate:"max=255"`
	InternalCustomerID              string       `json:"internal_customer_id" validate:"max=64"`
	ExternalCustomerID              string       `json:"external_customer_id" validate:"max=64"`
	InvoicingPeriod                 string       `json:"invoicing_period" validate:"required,oneof=MONTH QUARTER HALF_YEAR YEAR CUSTOM"`
	InvoicingAmountOfDays           *int         `json:"invoicing_amount_of_days,omitempty" validate:"omitempty,min=1"`
	PricingType                     PricingType  `json:"pricing_type" validate:"omitempty,oneof=PER_PERIOD PER_DAY"`
	StartDate                       time.Time    `json:"start_date" validate:"required"`
	EndDate                         *time.Time   `json:"end_date,omitempty"`
	GeneralLedgerDimensionContract1 string       `json:"general_ledger_dimension_contract_1" validate:"max=64"`
	GeneralLedgerDimensionContract2 string       `json:"general_ledger_dimension_contract_2" validate:"max=64"`
}

type UpdateContractRequest struct {
	Description                     *string    `json:"description,omitempty" validate:"omitempty,max=255"`
	InternalCustomerID              *string    `json:"internal_customer_id,omitempty" validate:"omitempty,max=64"`
	ExternalCustomerID              *string    `json:"external_customer_id,omitempty" validate:"omitempty,max=64"`
	InvoicingPeriod                 *string    `json:"invoicing_period,omitempty" validate:"omitempty,oneof=MONTH QUARTER HALF_YEAR YEAR CUSTOM"`
	InvoicingAmountOfDays           *int       `json:"invoicing_amount_of_days,omitempty" validate:"omitempty,min=1"`
	StartDate                       *time.Time `json:"start_date,omitempty"`
	EndDate                         *time.Time `json:"end_date,omitempty"`
	GeneralLedgerDimensionContract1 *string    `json:"general_ledger_dimension_contract_1,omitempty" validate:"omitempty,max=64"`
	GeneralLedgerDimensionContract2 *string    `json:"general_ledger_dimension_contract_2,omitempty" validate:"omitempty,max=64"`
}

type ComponentRequest struct {
	BaseComponentID snowflake.ID     `json:"base_component_id" validate:"required"`
	VATRateID       *snowflake.ID    `json:"vat_rate_id,omitempty"`
	Description     string           `json:"description" validate:"max=255"`
	StartDate       time.Time        `json:"start_date" validate:"required"`
	EndDate         *time.Time       `json:"end_date,omitempty"`
	BaseAmount      *decimal.Decimal `json:"base_amount,omitempty"`
	UnitAmount      *decimal.Decimal `json:"unit_amount,omitempty"`
	NumberOfUnits   *decimal.Decimal `json:"number_of_units,omitempty"`
	UnitID          *string          `json:"unit_id,omitempty"`
}

type ContractPersonRequest struct {
	Type              string          `json:"type" validate:"max=32"`
	StartDate         time.Time       `json:"start_date" validate:"required"`
	EndDate           *time.Time      `json:"end_date,omitempty"`
	Name              string          `json:"name" validate:"required,max=255"`
	Address           string          `json:"address" validate:"max=255"`
	City              string          `json:"city" validate:"max=255"`
	Email             string          `json:"email" validate:"omitempty,email"`
	Phone             string          `json:"phone" validate:"max=32"`
	PaymentMethod     PaymentMethod   `json:"payment_method" validate:"required,oneof=DIRECT_DEBIT EMAIL SMS LETTER INVOICE"`
	IBAN              string          `json:"iban" validate:"max=34"`
	Mandate           string          `json:"mandate" validate:"max=64"`
	PercentageOfTotal decimal.Decimal `json:"percentage_of_total"`
	PaymentDay        int             `json:"payment_day" validate:"min=1,max=28"`
}

// ComponentResult carries the created component and, when it replaced an
// already invoiced one, the correction invoice that settled the difference.
type ComponentResult struct {
	Component         *Component
	Replaced          *Component
	CorrectionInvoice *snowflake.ID
}

// DeactivationResult reports what ending a contract or component produced.
type DeactivationResult struct {
	Contract          *Contract
	Components        []*Component
	CorrectionInvoice *snowflake.ID
}

var (
	ErrInvalidRequest       = errors.New("invalid_request")
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrNotFound             = errors.New("not_found")
	ErrAlreadyBilled        = errors.New("already_billed")
	ErrInvalidPricing       = errors.New("invalid_pricing")
	ErrInvalidDateRange     = errors.New("invalid_date_range")
	ErrInvalidStatus        = errors.New("invalid_contract_status")
	ErrNoComponents         = errors.New("contract_has_no_components")
	ErrNoPersons            = errors.New("contract_has_no_persons")
	ErrInvalidPercentage    = errors.New("invalid_percentage_of_total")
	ErrMissingMandate       = errors.New("direct_debit_requires_iban_and_mandate")
	ErrVATRateNotApplicable = errors.New("vat_rate_not_applicable")
)
