package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/invoiceengine/internal/audit/domain"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	"github.com/smallbiznis/invoiceengine/internal/billing/engine"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	"github.com/smallbiznis/invoiceengine/internal/logger"
	"github.com/smallbiznis/invoiceengine/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func (s *Service) InvoicedUntil(ctx context.Context, tx store.Tx, tenantID, componentID snowflake.ID) (*time.Time, error) {
	lines, err := tx.InvoiceLinesForComponent(ctx, tenantID, componentID)
	if err != nil {
		return nil, err
	}
	return engine.InvoicedUntil(lines), nil
}

// Correct issues one correction invoice for req.Contract inside tx. It
// persists the invoice rows, the touched contract and components and the
// tenant's invoice counter; callers must not save a tenant they loaded
// earlier in the same transaction.
func (s *Service) Correct(ctx context.Context, tx store.Tx, req billingdomain.CorrectionRequest) (*billingdomain.CorrectionResult, error) {
	contract := req.Contract
	if contract == nil {
		return nil, billingdomain.ErrInvalidContract
	}
	if len(req.Items) == 0 {
		return nil, billingdomain.ErrNothingToCorrect
	}
	tenantID := contract.TenantID

	ctx, span := tracer.Start(ctx, "billing.correct", trace.WithAttributes(
		attribute.String("tenant_id", tenantID.String()),
		attribute.String("contract_id", contract.ID.String()),
		attribute.String("reason", string(req.Reason)),
	))
	defer span.End()

	res, err := s.correct(ctx, tx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("invoice_id", res.Invoice.ID.String()),
		attribute.Int("lines", len(res.Lines)),
	)
	return res, nil
}

func (s *Service) correct(ctx context.Context, tx store.Tx, req billingdomain.CorrectionRequest) (*billingdomain.CorrectionResult, error) {
	contract := req.Contract
	tenantID := contract.TenantID

	tenant, err := tx.LockTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, billingdomain.ErrTenantNotFound
	}
	catalog, err := tx.LoadCatalog(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	persons, err := tx.ListPersons(ctx, tenantID, contract.ID)
	if err != nil {
		return nil, err
	}

	items := make([]engine.CorrectionItem, 0, len(req.Items))
	touched := make([]*contractdomain.Component, 0, len(req.Items)*2)
	seen := make(map[snowflake.ID]struct{}, len(req.Items)*2)
	touch := func(comp *contractdomain.Component) {
		if comp == nil {
			return
		}
		if _, ok := seen[comp.ID]; ok {
			return
		}
		seen[comp.ID] = struct{}{}
		touched = append(touched, comp)
	}
	for _, item := range req.Items {
		lines, err := tx.InvoiceLinesForComponent(ctx, tenantID, item.Component.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, engine.CorrectionItem{
			Component:   item.Component,
			Lines:       lines,
			Cutover:     item.Cutover,
			Replacement: item.Replacement,
			Retire:      item.Retire,
		})
		touch(item.Component)
		touch(item.Replacement)
	}

	date := req.Date
	if date.IsZero() {
		date = s.today()
	}
	out, err := s.engine().Correct(engine.CorrectionInput{
		Tenant:      tenant,
		Contract:    contract,
		Persons:     persons,
		Catalog:     engine.NewCatalog(catalog.ContractTypes, catalog.BaseComponents, catalog.VATRates),
		Date:        date,
		Items:       items,
		EndContract: req.EndContract,
	})
	if err != nil {
		return nil, err
	}

	if err := persistOutput(ctx, tx, out); err != nil {
		return nil, err
	}
	if err := tx.SaveContracts(ctx, contract); err != nil {
		return nil, err
	}
	if err := tx.SaveComponents(ctx, touched...); err != nil {
		return nil, err
	}
	if err := tx.SaveTenant(ctx, tenant); err != nil {
		return nil, err
	}

	inv := out.Invoices[0]
	logger.WithContext(ctx, s.log).Info("correction invoice created",
		zap.String("contract_id", contract.ID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.Int64("invoice_number", inv.InvoiceNumber),
		zap.String("reason", string(req.Reason)),
		zap.Int("lines", len(out.Lines)),
	)
	return &billingdomain.CorrectionResult{
		Reason:      req.Reason,
		Invoice:     inv,
		Lines:       out.Lines,
		Posts:       len(out.Posts),
		Collections: len(out.Collections),
	}, nil
}

func (s *Service) Committed(ctx context.Context, res *billingdomain.CorrectionResult) {
	if res == nil || res.Invoice == nil {
		return
	}
	inv := res.Invoice
	s.metrics.IncCorrection(string(res.Reason))
	s.metrics.AddInvoices(string(invoicedomain.InvoiceKindCorrection), 1)
	s.obsMetrics.RecordCorrection(ctx, inv.TenantID.String(), string(res.Reason))
	s.audit(ctx, inv.TenantID, auditdomain.ActionBillingCorrection, "invoice", inv.ID.String(), map[string]any{
		"contract_id":    inv.ContractID.String(),
		"invoice_number": inv.InvoiceNumber,
		"reason":         string(res.Reason),
		"total_amount":   inv.TotalAmount.String(),
	})
}

var _ billingdomain.Corrector = (*Service)(nil)
