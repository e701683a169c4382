package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/invoiceengine/internal/ledger/domain"
)

// Service answers read queries over issued invoices for downstream exports.
type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*InvoiceWithLines, error)
	ListByContract(ctx context.Context, contractID snowflake.ID) ([]*Invoice, error)
	CollectionsByPaymentMethod(ctx context.Context, date time.Time) (map[string][]*Collection, error)
	InvoicesWithPosts(ctx context.Context, date time.Time) ([]*InvoiceWithPosts, error)
}

type InvoiceWithLines struct {
	Invoice *Invoice
	Lines   []*InvoiceLine
}

type InvoiceWithPosts struct {
	Invoice *Invoice
	Posts   []*ledgerdomain.GeneralLedgerPost
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrNotFound      = errors.New("invoice_not_found")
)
