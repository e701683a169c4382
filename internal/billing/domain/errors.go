package domain

import "errors"

// Precondition violations abort the surrounding transaction and are never retried.
var (
	ErrZeroLengthPeriod    = errors.New("zero_length_period")
	ErrMissingPricing      = errors.New("missing_pricing")
	ErrNothingToCorrect    = errors.New("nothing_to_correct")
	ErrMissingCatalogEntry = errors.New("missing_catalog_entry")
	ErrInvalidContract     = errors.New("invalid_contract")
)

var (
	ErrInvalidTenant  = errors.New("invalid_tenant")
	ErrTenantNotFound = errors.New("tenant_not_found")
	ErrRunInProgress  = errors.New("invoicing_run_in_progress")
)
