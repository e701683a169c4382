package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/invoiceengine/internal/audit/domain"
	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	"github.com/smallbiznis/invoiceengine/internal/billing/engine"
	"github.com/smallbiznis/invoiceengine/internal/clock"
	"github.com/smallbiznis/invoiceengine/internal/config"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	"github.com/smallbiznis/invoiceengine/internal/lock"
	"github.com/smallbiznis/invoiceengine/internal/logger"
	obsmetrics "github.com/smallbiznis/invoiceengine/internal/observability/metrics"
	"github.com/smallbiznis/invoiceengine/internal/store"
	"github.com/smallbiznis/invoiceengine/pkg/tenantctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultRunLockTTL = 30 * time.Minute

var tracer = otel.Tracer("github.com/smallbiznis/invoiceengine/internal/billing/service")

type Params struct {
	fx.In

	Store         store.Store
	Log           *zap.Logger
	GenID         *snowflake.Node
	Config        config.Config
	BillingConfig *config.BillingConfigHolder
	Clock         clock.Clock                `optional:"true"`
	Locker        lock.Locker                `optional:"true"`
	AuditSvc      auditdomain.Service        `optional:"true"`
	Metrics       *obsmetrics.BillingMetrics `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics        `optional:"true"`
}

type Service struct {
	store      store.Store
	log        *zap.Logger
	genID      *snowflake.Node
	billingCfg *config.BillingConfigHolder
	clock      clock.Clock
	locker     lock.Locker
	lockTTL    time.Duration
	auditSvc   auditdomain.Service
	metrics    *obsmetrics.BillingMetrics
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	ttl := p.Config.Scheduler.LockTTL
	if ttl <= 0 {
		ttl = defaultRunLockTTL
	}
	return &Service{
		store:      p.Store,
		log:        p.Log.Named("billing.service"),
		genID:      p.GenID,
		billingCfg: p.BillingConfig,
		clock:      c,
		locker:     p.Locker,
		lockTTL:    ttl,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
		obsMetrics: p.ObsMetrics,
	}
}

// engine is rebuilt per call so billing.yml reloads apply to the next run.
func (s *Service) engine() *engine.Engine {
	cfg := s.billingCfg.Get()
	return engine.New(s.genID, engine.Config{
		Places:                  cfg.RoundingPlaces,
		InvoiceDescription:      cfg.Descriptions.Invoice,
		CorrectionDescription:   cfg.Descriptions.Correction,
		DebtorPostDescription:   cfg.Descriptions.Debtor,
		ProceedsPostDescription: cfg.Descriptions.Proceeds,
		VATPostDescription:      cfg.Descriptions.VAT,
	})
}

func (s *Service) today() time.Time {
	return calendar.Truncate(s.clock.Now())
}

func (s *Service) RunInvoicing(ctx context.Context, tenantID snowflake.ID, asOf time.Time) (*billingdomain.RunResult, error) {
	if tenantID == 0 {
		return nil, billingdomain.ErrInvalidTenant
	}
	if asOf.IsZero() {
		asOf = s.today()
	}
	asOf = calendar.Truncate(asOf)

	result := &billingdomain.RunResult{
		RunID:    uuid.NewString(),
		TenantID: tenantID,
		AsOf:     asOf,
	}

	ctx = tenantctx.WithTenantID(ctx, tenantID)
	ctx, span := tracer.Start(ctx, "billing.run", trace.WithAttributes(
		attribute.String("tenant_id", tenantID.String()),
		attribute.String("run_id", result.RunID),
		attribute.String("as_of", asOf.Format(time.DateOnly)),
	))
	defer span.End()

	log := logger.WithContext(ctx, s.log).With(
		zap.String("run_id", result.RunID),
		zap.String("as_of", asOf.Format(time.DateOnly)),
	)
	started := s.clock.Now()

	if s.locker != nil {
		key := lock.TenantRunKey(tenantID)
		token, ok, err := s.locker.TryLock(ctx, key, s.lockTTL)
		if err != nil {
			return nil, s.failRun(ctx, span, log, tenantID, started, fmt.Errorf("acquire run lock: %w", err))
		}
		if !ok {
			s.metrics.ObserveRun(tenantID.String(), obsmetrics.RunOutcomeSkipped, s.clock.Now().Sub(started))
			log.Info("invoicing run skipped, another run holds the tenant lock")
			return nil, billingdomain.ErrRunInProgress
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn("release run lock failed", zap.Error(err))
			}
		}()
	}

	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		return s.runInTx(ctx, tx, tenantID, asOf, result)
	})
	if err != nil {
		return nil, s.failRun(ctx, span, log, tenantID, started, err)
	}

	outcome := obsmetrics.RunOutcomeSuccess
	if result.Empty() {
		outcome = obsmetrics.RunOutcomeEmpty
	}
	s.metrics.ObserveRun(tenantID.String(), outcome, s.clock.Now().Sub(started))
	s.metrics.AddInvoices(string(invoicedomain.InvoiceKindRegular), result.Invoices)
	s.obsMetrics.RecordRun(ctx, tenantID.String(), result.Invoices, result.Lines)
	span.SetAttributes(
		attribute.Int("invoices", result.Invoices),
		attribute.Int("lines", result.Lines),
	)

	log.Info("invoicing run committed",
		zap.Int("contracts", result.Contracts),
		zap.Int("invoices", result.Invoices),
		zap.Int("lines", result.Lines),
		zap.Int("posts", result.Posts),
		zap.Int("collections", result.Collections),
		zap.Int64("first_invoice_number", result.FirstInvoiceNumber),
		zap.Int64("last_invoice_number", result.LastInvoiceNumber),
		zap.Duration("duration", s.clock.Now().Sub(started)),
	)

	s.audit(ctx, tenantID, auditdomain.ActionBillingRun, "tenant", tenantID.String(), map[string]any{
		"run_id":               result.RunID,
		"as_of":                asOf.Format(time.DateOnly),
		"invoices":             result.Invoices,
		"lines":                result.Lines,
		"first_invoice_number": result.FirstInvoiceNumber,
		"last_invoice_number":  result.LastInvoiceNumber,
	})
	return result, nil
}

func (s *Service) runInTx(ctx context.Context, tx store.Tx, tenantID snowflake.ID, asOf time.Time, result *billingdomain.RunResult) error {
	tenant, err := tx.LockTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant == nil {
		return billingdomain.ErrTenantNotFound
	}

	contracts, err := tx.DueContracts(ctx, tenantID, asOf)
	if err != nil {
		return err
	}
	if len(contracts) == 0 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(contracts))
	for _, c := range contracts {
		ids = append(ids, c.ID)
	}

	components, err := tx.ListComponents(ctx, tenantID, ids...)
	if err != nil {
		return err
	}
	persons, err := tx.ListPersons(ctx, tenantID, ids...)
	if err != nil {
		return err
	}
	catalog, err := tx.LoadCatalog(ctx, tenantID)
	if err != nil {
		return err
	}

	batch := &engine.Batch{
		Tenant:     tenant,
		Contracts:  contracts,
		Components: make(map[snowflake.ID][]*contractdomain.Component, len(contracts)),
		Persons:    make(map[snowflake.ID][]*contractdomain.ContractPerson, len(contracts)),
		Catalog:    engine.NewCatalog(catalog.ContractTypes, catalog.BaseComponents, catalog.VATRates),
	}
	for _, comp := range components {
		batch.Components[comp.ContractID] = append(batch.Components[comp.ContractID], comp)
	}
	for _, p := range persons {
		batch.Persons[p.ContractID] = append(batch.Persons[p.ContractID], p)
	}

	lastNumber := tenant.LastInvoiceNumber
	out, err := s.engine().Run(batch, asOf)
	if err != nil {
		return err
	}

	if err := persistOutput(ctx, tx, out); err != nil {
		return err
	}
	if err := tx.SaveContracts(ctx, contracts...); err != nil {
		return err
	}
	if err := tx.SaveComponents(ctx, components...); err != nil {
		return err
	}
	if tenant.LastInvoiceNumber != lastNumber {
		if err := tx.SaveTenant(ctx, tenant); err != nil {
			return err
		}
	}

	result.Contracts = len(contracts)
	fillCounts(result, out)
	return nil
}

func (s *Service) failRun(ctx context.Context, span trace.Span, log *zap.Logger, tenantID snowflake.ID, started time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	reason := obsmetrics.ClassifySchedulerJobReason(err)
	s.metrics.ObserveRun(tenantID.String(), obsmetrics.RunOutcomeFailed, s.clock.Now().Sub(started))
	s.obsMetrics.RecordRunFailure(ctx, tenantID.String(), reason)
	if errors.Is(err, billingdomain.ErrTenantNotFound) {
		log.Warn("invoicing run for unknown tenant")
		return err
	}
	log.Error("invoicing run rolled back", zap.String("reason", reason), zap.Error(err))
	return err
}

// persistOutput writes rows parents first.
func persistOutput(ctx context.Context, tx store.Tx, out *engine.Output) error {
	if err := tx.CreateInvoices(ctx, out.Invoices); err != nil {
		return fmt.Errorf("create invoices: %w", err)
	}
	if err := tx.CreateInvoiceLines(ctx, out.Lines); err != nil {
		return fmt.Errorf("create invoice lines: %w", err)
	}
	if err := tx.CreatePosts(ctx, out.Posts); err != nil {
		return fmt.Errorf("create general ledger posts: %w", err)
	}
	if err := tx.CreateCollections(ctx, out.Collections); err != nil {
		return fmt.Errorf("create collections: %w", err)
	}
	return nil
}

func fillCounts(result *billingdomain.RunResult, out *engine.Output) {
	result.Invoices = len(out.Invoices)
	result.Lines = len(out.Lines)
	result.Posts = len(out.Posts)
	result.Collections = len(out.Collections)
	result.InvoiceIDs = make([]snowflake.ID, 0, len(out.Invoices))
	for _, inv := range out.Invoices {
		result.InvoiceIDs = append(result.InvoiceIDs, inv.ID)
		if inv.Kind == invoicedomain.InvoiceKindCorrection {
			result.Corrections++
		}
		if result.FirstInvoiceNumber == 0 || inv.InvoiceNumber < result.FirstInvoiceNumber {
			result.FirstInvoiceNumber = inv.InvoiceNumber
		}
		if inv.InvoiceNumber > result.LastInvoiceNumber {
			result.LastInvoiceNumber = inv.InvoiceNumber
		}
	}
}

// audit is best effort; the change it records has already committed.
func (s *Service) audit(ctx context.Context, tenantID snowflake.ID, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, &tenantID, "", nil, action, targetType, &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

var _ billingdomain.Service = (*Service)(nil)
