package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/invoiceengine/internal/audit/domain"
	obslogger "github.com/smallbiznis/invoiceengine/internal/logger"
	"github.com/smallbiznis/invoiceengine/pkg/telemetry/correlation"
	"github.com/smallbiznis/invoiceengine/pkg/tenantctx"
	"go.uber.org/zap"
)

// tickRun tracks one pass over the tenants.
type tickRun struct {
	runID     string
	tenants   int
	startedAt time.Time
	processed int
	skipped   int
	errors    int
}

func (s *Scheduler) newTickRun(tenants int) *tickRun {
	return &tickRun{
		runID:     s.genID.Generate().String(),
		tenants:   tenants,
		startedAt: s.clock.Now(),
	}
}

func (s *Scheduler) withLogContext(ctx context.Context, runID string, tenantID snowflake.ID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = auditdomain.WithActor(ctx, auditdomain.ActorTypeScheduler, "scheduler")
	ctx = correlation.WithID(ctx, runID)
	if tenantID != 0 {
		ctx = tenantctx.WithTenantID(ctx, tenantID)
	}
	return ctx
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logTickStart(ctx context.Context, run *tickRun) {
	s.logger(ctx).Info("scheduler.tick.start",
		zap.String("run_id", run.runID),
		zap.Int("tenants", run.tenants),
		zap.Int("concurrency", s.cfg.Concurrency),
	)
}

func (s *Scheduler) logTickFinish(ctx context.Context, run *tickRun) {
	fields := []zap.Field{
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("skipped_count", run.skipped),
		zap.Int("error_count", run.errors),
	}
	log := s.logger(ctx)
	if run.errors > 0 {
		log.Warn("scheduler.tick.finish", fields...)
		return
	}
	log.Info("scheduler.tick.finish", fields...)
}
