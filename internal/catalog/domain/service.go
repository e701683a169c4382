package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Service interface {
	CreateContractType(ctx context.Context, req ContractTypeRequest) (*ContractType, error)
	UpdateContractType(ctx context.Context, id snowflake.ID, req ContractTypeRequest) (*ContractType, error)
	DeleteContractType(ctx context.Context, id snowflake.ID) error

	CreateBaseComponent(ctx context.Context, req BaseComponentRequest) (*BaseComponent, error)
	UpdateBaseComponent(ctx context.Context, id snowflake.ID, req BaseComponentRequest) (*BaseComponent, error)
	DeleteBaseComponent(ctx context.Context, id snowflake.ID) error

	CreateVATRate(ctx context.Context, req CreateVATRateRequest) (*VATRate, error)
	UpdateVATRate(ctx context.Context, id snowflake.ID, req UpdateVATRateRequest) (*VATRate, error)
	DeleteVATRate(ctx context.Context, id snowflake.ID) error
	ListVATRates(ctx context.Context, vatType *int) ([]*VATRate, error)
}

type ContractTypeRequest struct {
	Code                string `json:"code" validate:"required,max=64"`
	Description         string `json:"description" validate:"max=255"`
	GeneralLedgerDebit  string `json:"general_ledger_debit" validate:"max=64"`
	GeneralLedgerCredit string `json:"general_ledger_credit" validate:"max=64"`
}

type BaseComponentRequest struct {
	Code                   string  `json:"code" validate:"required,max=64"`
	Description            string  `json:"description" validate:"max=255"`
	GeneralLedgerDebit     string  `json:"general_ledger_debit" validate:"max=64"`
	GeneralLedgerCredit    string  `json:"general_ledger_credit" validate:"max=64"`
	GeneralLedgerDimension string  `json:"general_ledger_dimension" validate:"max=64"`
	UnitID                 *string `json:"unit_id,omitempty"`
}

type CreateVATRateRequest struct {
	Type                   int             `json:"type" validate:"min=0"`
	Description            string          `json:"description" validate:"max=255"`
	StartDate              time.Time       `json:"start_date" validate:"required"`
	EndDate                *time.Time      `json:"end_date,omitempty"`
	Percentage             decimal.Decimal `json:"percentage"`
	GeneralLedgerAccount   string          `json:"general_ledger_account" validate:"max=64"`
	GeneralLedgerDimension string          `json:"general_ledger_dimension" validate:"max=64"`
	// LinkPredecessor makes the closed predecessor point at the new rate so
	// components still referencing it switch over at their next billing.
	LinkPredecessor bool `json:"link_predecessor"`
}

type UpdateVATRateRequest struct {
	Description            *string          `json:"description,omitempty" validate:"omitempty,max=255"`
	EndDate                *time.Time       `json:"end_date,omitempty"`
	Percentage             *decimal.Decimal `json:"percentage,omitempty"`
	GeneralLedgerAccount   *string          `json:"general_ledger_account,omitempty" validate:"omitempty,max=64"`
	GeneralLedgerDimension *string          `json:"general_ledger_dimension,omitempty" validate:"omitempty,max=64"`
}

var (
	ErrInvalidRequest    = errors.New("invalid_request")
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrNotFound          = errors.New("not_found")
	ErrInUse             = errors.New("in_use")
	ErrDuplicateCode     = errors.New("duplicate_code")
	ErrInvalidPercentage = errors.New("invalid_vat_percentage")
	ErrInvalidDateRange  = errors.New("invalid_date_range")
)
