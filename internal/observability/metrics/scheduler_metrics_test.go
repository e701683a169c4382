package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "run_in_progress", err: fmt.Errorf("tenant 1: %w", billingdomain.ErrRunInProgress), want: SchedulerJobReasonRunInProgress},
		{name: "tenant_not_found", err: billingdomain.ErrTenantNotFound, want: SchedulerJobReasonTenantNotFound},
		{name: "precondition", err: fmt.Errorf("component 7: %w", billingdomain.ErrMissingPricing), want: SchedulerJobReasonPrecondition},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "deadlock_pq", err: &pq.Error{Code: "40P01"}, want: SchedulerJobReasonDeadlock},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestIsSchedulerErrorRetryable(t *testing.T) {
	require.True(t, IsSchedulerErrorRetryable(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsSchedulerErrorRetryable(billingdomain.ErrRunInProgress))
	require.False(t, IsSchedulerErrorRetryable(billingdomain.ErrZeroLengthPeriod))
	require.False(t, IsSchedulerErrorRetryable(errors.New("boom")))
	require.False(t, IsSchedulerErrorRetryable(nil))
}

func TestSchedulerMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "invoiceengine", Environment: "test"})

	m.IncJobRun("invoice_tenants")
	m.AddTenantsProcessed("invoice_tenants", 3)
	m.AddTenantsProcessed("invoice_tenants", 0)
	m.IncTenantSkipped("invoice_tenants", SchedulerJobReasonRunInProgress)
	m.IncJobError("invoice_tenants", &pgconn.PgError{Code: "40001"})
	m.IncJobError("invoice_tenants", nil)

	require.Equal(t, float64(1), testutil.ToFloat64(m.jobRuns.WithLabelValues("invoice_tenants")))
	require.Equal(t, float64(3), testutil.ToFloat64(m.tenantsProcessed.WithLabelValues("invoice_tenants")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.tenantsSkipped.WithLabelValues("invoice_tenants", SchedulerJobReasonRunInProgress)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.jobErrors.WithLabelValues("invoice_tenants", SchedulerJobReasonSerializationFailure)))
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var m *SchedulerMetrics
	require.NotPanics(t, func() {
		m.IncJobRun("x")
		m.IncJobTimeout("x")
		m.ObserveRunLoopLag(-1)
	})
}
