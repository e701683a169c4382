package gormstore

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/invoiceengine/internal/ledger/domain"
	"github.com/smallbiznis/invoiceengine/pkg/db/option"
)

func (s *Store) CreateInvoices(ctx context.Context, invoices []*invoicedomain.Invoice) error {
	return s.invoices.Insert(ctx, invoices...)
}

func (s *Store) CreateInvoiceLines(ctx context.Context, lines []*invoicedomain.InvoiceLine) error {
	return s.lines.Insert(ctx, lines...)
}

func (s *Store) CreatePosts(ctx context.Context, posts []*ledgerdomain.GeneralLedgerPost) error {
	return s.posts.Insert(ctx, posts...)
}

func (s *Store) CreateCollections(ctx context.Context, collections []*invoicedomain.Collection) error {
	return s.collections.Insert(ctx, collections...)
}

func (s *Store) GetInvoice(ctx context.Context, tenantID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.invoices.First(ctx, &invoicedomain.Invoice{ID: id, TenantID: tenantID})
}

func (s *Store) ListInvoicesByContract(ctx context.Context, tenantID, contractID snowflake.ID) ([]*invoicedomain.Invoice, error) {
	return s.invoices.Find(ctx,
		&invoicedomain.Invoice{TenantID: tenantID, ContractID: contractID},
		option.OrderBy("invoice_number"),
	)
}

func (s *Store) InvoicesByDate(ctx context.Context, tenantID snowflake.ID, date time.Time) ([]*invoicedomain.Invoice, error) {
	return s.invoices.Find(ctx, &invoicedomain.Invoice{TenantID: tenantID},
		option.Where("date = ?", date),
		option.OrderBy("invoice_number"),
	)
}

func (s *Store) InvoiceLines(ctx context.Context, tenantID, invoiceID snowflake.ID) ([]*invoicedomain.InvoiceLine, error) {
	return s.lines.Find(ctx,
		&invoicedomain.InvoiceLine{TenantID: tenantID, InvoiceID: invoiceID},
		option.OrderBy("id"),
	)
}

func (s *Store) InvoiceLinesForComponent(ctx context.Context, tenantID, componentID snowflake.ID) ([]*invoicedomain.InvoiceLine, error) {
	return s.lines.Find(ctx,
		&invoicedomain.InvoiceLine{TenantID: tenantID, ComponentID: componentID},
		option.OrderBy("period_start desc, id desc"),
	)
}

func (s *Store) CollectionsByDate(ctx context.Context, tenantID snowflake.ID, date time.Time) ([]*invoicedomain.Collection, error) {
	return s.collections.Find(ctx, &invoicedomain.Collection{TenantID: tenantID},
		option.Where("date = ?", date),
		option.OrderBy("payment_method, invoice_number, id"),
	)
}

func (s *Store) PostsByInvoices(ctx context.Context, tenantID snowflake.ID, invoiceIDs ...snowflake.ID) ([]*ledgerdomain.GeneralLedgerPost, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}
	return s.posts.Find(ctx, &ledgerdomain.GeneralLedgerPost{TenantID: tenantID},
		option.Where("invoice_id IN ?", invoiceIDs),
		option.OrderBy("invoice_id, id"),
	)
}
