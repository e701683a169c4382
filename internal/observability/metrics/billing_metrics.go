package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RunOutcomeSuccess = "success"
	RunOutcomeEmpty   = "empty"
	RunOutcomeFailed  = "failed"
	RunOutcomeSkipped = "skipped"
)

// BillingMetrics counts invoicing runs and what they issue.
type BillingMetrics struct {
	runs            *prometheus.CounterVec
	runDuration     prometheus.Observer
	invoicesCreated *prometheus.CounterVec
	corrections     *prometheus.CounterVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the singleton billing metrics registry.
func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

// BillingWithConfig returns the singleton billing metrics registry using config labels.
func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest resets the billing metrics singleton for tests.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

// NewBillingMetrics registers a fresh set of billing metrics on registerer.
func NewBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	return newBillingMetrics(registerer, cfg)
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invoiceengine_invoicing_runs_total",
		Help:        "Invoicing runs by tenant and outcome.",
		ConstLabels: labels,
	}, []string{"tenant", "outcome"})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "invoiceengine_invoicing_run_duration_seconds",
		Help:        "Wall time of one tenant invoicing run including commit.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: labels,
	})
	invoicesCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invoiceengine_invoices_created_total",
		Help:        "Invoices committed by kind.",
		ConstLabels: labels,
	}, []string{"kind"})
	corrections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invoiceengine_corrections_total",
		Help:        "Correction invoices committed by triggering event.",
		ConstLabels: labels,
	}, []string{"reason"})

	registerer.MustRegister(runs, runDuration, invoicesCreated, corrections)

	return &BillingMetrics{
		runs:            runs,
		runDuration:     runDuration,
		invoicesCreated: invoicesCreated,
		corrections:     corrections,
	}
}

// ObserveRun records one finished run.
func (m *BillingMetrics) ObserveRun(tenant, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(tenant, outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// AddInvoices counts committed invoices of kind.
func (m *BillingMetrics) AddInvoices(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.invoicesCreated.WithLabelValues(kind).Add(float64(count))
}

// IncCorrection counts one committed correction invoice.
func (m *BillingMetrics) IncCorrection(reason string) {
	if m == nil {
		return
	}
	m.corrections.WithLabelValues(reason).Inc()
}
