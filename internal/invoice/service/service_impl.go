package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/invoiceengine/internal/ledger/domain"
	"github.com/smallbiznis/invoiceengine/internal/store"
	"github.com/smallbiznis/invoiceengine/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Store store.Store
	Log   *zap.Logger
}

type Service struct {
	store store.Store
	log   *zap.Logger
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		store: p.Store,
		log:   p.Log.Named("invoice.service"),
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*invoicedomain.InvoiceWithLines, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	invoice, err := s.store.GetInvoice(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	lines, err := s.store.InvoiceLines(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return &invoicedomain.InvoiceWithLines{Invoice: invoice, Lines: lines}, nil
}

func (s *Service) ListByContract(ctx context.Context, contractID snowflake.ID) ([]*invoicedomain.Invoice, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListInvoicesByContract(ctx, tenantID, contractID)
}

// CollectionsByPaymentMethod groups the collections of invoices dated date by
// payment method, each group ordered by invoice number.
func (s *Service) CollectionsByPaymentMethod(ctx context.Context, date time.Time) (map[string][]*invoicedomain.Collection, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	collections, err := s.store.CollectionsByDate(ctx, tenantID, calendar.Truncate(date))
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]*invoicedomain.Collection)
	for _, c := range collections {
		grouped[c.PaymentMethod] = append(grouped[c.PaymentMethod], c)
	}

	s.log.Debug("collections grouped",
		zap.String("tenant_id", tenantID.String()),
		zap.String("date", date.Format(time.DateOnly)),
		zap.Int("collections", len(collections)),
		zap.Int("payment_methods", len(grouped)),
	)
	return grouped, nil
}

// InvoicesWithPosts returns every invoice dated date with its general ledger posts.
func (s *Service) InvoicesWithPosts(ctx context.Context, date time.Time) ([]*invoicedomain.InvoiceWithPosts, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	invoices, err := s.store.InvoicesByDate(ctx, tenantID, calendar.Truncate(date))
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return []*invoicedomain.InvoiceWithPosts{}, nil
	}

	ids := make([]snowflake.ID, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
	}
	posts, err := s.store.PostsByInvoices(ctx, tenantID, ids...)
	if err != nil {
		return nil, err
	}
	byInvoice := make(map[snowflake.ID][]*ledgerdomain.GeneralLedgerPost, len(invoices))
	for _, p := range posts {
		byInvoice[p.InvoiceID] = append(byInvoice[p.InvoiceID], p)
	}

	out := make([]*invoicedomain.InvoiceWithPosts, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, &invoicedomain.InvoiceWithPosts{Invoice: inv, Posts: byInvoice[inv.ID]})
	}
	return out, nil
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return 0, invoicedomain.ErrInvalidTenant
	}
	return tenantID, nil
}
