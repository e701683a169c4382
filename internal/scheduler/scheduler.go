// Package scheduler invoices every tenant on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	"github.com/smallbiznis/invoiceengine/internal/clock"
	obsmetrics "github.com/smallbiznis/invoiceengine/internal/observability/metrics"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const jobInvoiceTenant = "invoice_tenant"

var ErrInvalidConfig = errors.New("invalid scheduler config")

type Params struct {
	fx.In

	Log        *zap.Logger
	TenantSvc  tenantdomain.Service
	BillingSvc billingdomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock                  `optional:"true"`
	Metrics    *obsmetrics.SchedulerMetrics `optional:"true"`
	Config     Config                       `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	metrics    *obsmetrics.SchedulerMetrics
	tenantSvc  tenantdomain.Service
	billingSvc billingdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.TenantSvc == nil || p.BillingSvc == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	m := p.Metrics
	if m == nil {
		m = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      c,
		metrics:    m,
		tenantSvc:  p.TenantSvc,
		billingSvc: p.BillingSvc,
	}, nil
}

// RunForever runs a tick right away and then once per interval until ctx ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce invoices every selected tenant as of today. A failing tenant never
// stops the others; their errors are joined into the result.
func (s *Scheduler) RunOnce(parent context.Context) error {
	tenants, err := s.tenantsToRun(parent)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	run := s.newTickRun(len(tenants))
	ctx := s.withLogContext(parent, run.runID, 0)
	s.logTickStart(ctx, run)

	today := calendar.Truncate(s.clock.Now())
	var (
		mu     sync.Mutex
		joined error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, tenant := range tenants {
		g.Go(func() error {
			skipped, err := s.runJob(gctx, run.runID, tenant.ID, func(ctx context.Context) (bool, error) {
				return s.invoiceTenant(ctx, tenant.ID, today)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				run.errors++
				joined = errors.Join(joined, err)
			case skipped:
				run.skipped++
			default:
				run.processed++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.AddTenantsProcessed(jobInvoiceTenant, run.processed)
	s.logTickFinish(ctx, run)
	return joined
}

func (s *Scheduler) tenantsToRun(ctx context.Context) ([]*tenantdomain.Tenant, error) {
	all, err := s.tenantSvc.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*tenantdomain.Tenant, 0, len(all))
	for _, t := range all {
		if s.cfg.allowsTenant(t.ID.String()) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// runJob wraps one tenant run with a deadline, metrics and logging. A run
// that hits its deadline counts as skipped.
func (s *Scheduler) runJob(
	parent context.Context,
	runID string,
	tenantID snowflake.ID,
	fn func(ctx context.Context) (bool, error),
) (bool, error) {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()
	ctx = s.withLogContext(ctx, runID, tenantID)
	log := s.logger(ctx).With(zap.String("job", jobInvoiceTenant))

	s.metrics.IncJobRun(jobInvoiceTenant)
	skipped, err := fn(ctx)
	s.metrics.ObserveJobDuration(jobInvoiceTenant, s.clock.Now().Sub(start))
	if err == nil {
		return skipped, nil
	}

	s.metrics.IncJobError(jobInvoiceTenant, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(jobInvoiceTenant)
		s.metrics.IncTenantSkipped(jobInvoiceTenant, obsmetrics.SchedulerJobReasonDeadlineExceeded)
		log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return true, nil
	}

	fields := []zap.Field{
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	}
	if obsmetrics.IsPreconditionError(err) {
		log.Error("invoicing run rejected", fields...)
	} else {
		log.Warn("invoicing run failed", fields...)
	}
	return false, fmt.Errorf("tenant %s: %w", tenantID, err)
}

// invoiceTenant reports true when another process holds the tenant.
func (s *Scheduler) invoiceTenant(ctx context.Context, tenantID snowflake.ID, today time.Time) (bool, error) {
	res, err := s.billingSvc.RunInvoicing(ctx, tenantID, today)
	if errors.Is(err, billingdomain.ErrRunInProgress) {
		s.metrics.IncTenantSkipped(jobInvoiceTenant, obsmetrics.SchedulerJobReasonRunInProgress)
		s.logger(ctx).Info("tenant skipped, run in progress elsewhere")
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if !res.Empty() {
		s.logger(ctx).Info("tenant invoiced",
			zap.Int("invoices", res.Invoices),
			zap.Int64("first_invoice_number", res.FirstInvoiceNumber),
			zap.Int64("last_invoice_number", res.LastInvoiceNumber),
		)
	}
	return false, nil
}
