package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	"github.com/smallbiznis/invoiceengine/internal/store"
)

// RunResult summarizes one committed invoicing run.
type RunResult struct {
	RunID              string         `json:"run_id"`
	TenantID           snowflake.ID   `json:"tenant_id"`
	AsOf               time.Time      `json:"as_of"`
	Contracts          int            `json:"contracts"`
	Invoices           int            `json:"invoices"`
	Lines              int            `json:"lines"`
	Posts              int            `json:"posts"`
	Collections        int            `json:"collections"`
	Corrections        int            `json:"corrections"`
	FirstInvoiceNumber int64          `json:"first_invoice_number,omitempty"`
	LastInvoiceNumber  int64          `json:"last_invoice_number,omitempty"`
	InvoiceIDs         []snowflake.ID `json:"invoice_ids,omitempty"`
}

// Empty reports whether the run produced no invoice.
func (r *RunResult) Empty() bool {
	return r == nil || r.Invoices == 0
}

type Service interface {
	// RunInvoicing bills every due contract of the tenant up to asOf in one
	// transaction.
	RunInvoicing(ctx context.Context, tenantID snowflake.ID, asOf time.Time) (*RunResult, error)
}

// CorrectionReason names the edit that made billed history wrong.
type CorrectionReason string

const (
	CorrectionReasonReplacement  CorrectionReason = "component_replacement"
	CorrectionReasonDeactivation CorrectionReason = "deactivation"
	CorrectionReasonVATChange    CorrectionReason = "vat_change"
)

// CorrectionItem is one component to correct from Cutover onward.
type CorrectionItem struct {
	Component   *contractdomain.Component
	Cutover     time.Time
	Replacement *contractdomain.Component
	Retire      bool
}

type CorrectionRequest struct {
	Contract    *contractdomain.Contract
	Items       []CorrectionItem
	Reason      CorrectionReason
	EndContract bool
	// Date defaults to today.
	Date time.Time
}

type CorrectionResult struct {
	Reason      CorrectionReason
	Invoice     *invoicedomain.Invoice
	Lines       []*invoicedomain.InvoiceLine
	Posts       int
	Collections int
}

// Corrector runs corrections inside a transaction owned by the caller.
type Corrector interface {
	// InvoicedUntil returns the exclusive end of the last day billed for the
	// component, or nil when it was never billed.
	InvoicedUntil(ctx context.Context, tx store.Tx, tenantID, componentID snowflake.ID) (*time.Time, error)
	Correct(ctx context.Context, tx store.Tx, req CorrectionRequest) (*CorrectionResult, error)
	// Committed records a correction once the caller's transaction committed.
	Committed(ctx context.Context, res *CorrectionResult)
}
