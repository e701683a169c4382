package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Tenant, error)
	Update(ctx context.Context, req UpdateRequest) (*Tenant, error)
	Get(ctx context.Context, id snowflake.ID) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
}

type CreateRequest struct {
	Name                       string `json:"name" validate:"required,max=255"`
	DaysUntilInvoiceExpiration *int   `json:"days_until_invoice_expiration,omitempty" validate:"omitempty,min=0,max=365"`
}

type UpdateRequest struct {
	ID                         snowflake.ID `json:"id" validate:"required"`
	Name                       *string      `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	DaysUntilInvoiceExpiration *int         `json:"days_until_invoice_expiration,omitempty" validate:"omitempty,min=0,max=365"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInvalidName    = errors.New("invalid_name")
	ErrNotFound       = errors.New("tenant_not_found")
)
