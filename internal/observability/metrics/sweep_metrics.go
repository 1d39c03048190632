package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	SweepResultCompleted = "completed"
	SweepResultPartial   = "partial"
	SweepResultFailed    = "failed"
	SweepResultLocked    = "locked"
)

const (
	SkipReasonNoOwnerContact  = "no_owner_contact"
	SkipReasonAlreadyNotified = "already_notified"
	SkipReasonDeadline        = "deadline_exceeded"
	SkipReasonDB              = "db"
	SkipReasonUnknown         = "unknown"
)

const (
	SignalDueSoon      = "due_soon"
	SignalOverdue      = "overdue"
	SignalTrialExpired = "trial_expired"
)

// SweepMetrics tracks the billing cycle sweep triggered by the external cron.
type SweepMetrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	tenants  prometheus.Counter
	signals  *prometheus.CounterVec
	skips    *prometheus.CounterVec
}

var (
	sweepMetricsOnce sync.Once
	sweepMetrics     *SweepMetrics
)

// Sweep returns the process-wide sweep metrics.
func Sweep() *SweepMetrics {
	return SweepWithConfig(Config{})
}

func SweepWithConfig(cfg Config) *SweepMetrics {
	sweepMetricsOnce.Do(func() {
		sweepMetrics = newSweepMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweepMetrics
}

func newSweepMetrics(registerer prometheus.Registerer, cfg Config) *SweepMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "schoolbilling"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &SweepMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "schoolbilling_sweep_runs_total",
			Help:        "Billing cycle sweeps by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "schoolbilling_sweep_duration_seconds",
			Help:        "Billing cycle sweep latency.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			ConstLabels: constLabels,
		}),
		tenants: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "schoolbilling_sweep_tenants_evaluated_total",
			Help:        "Tenants evaluated by the billing cycle sweep.",
			ConstLabels: constLabels,
		}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "schoolbilling_sweep_signals_total",
			Help:        "Billing signals emitted by the sweep.",
			ConstLabels: constLabels,
		}, []string{"signal"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "schoolbilling_sweep_tenant_skips_total",
			Help:        "Tenants skipped during a sweep by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.tenants, m.signals, m.skips)
	return m
}

func (m *SweepMetrics) ObserveRun(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *SweepMetrics) IncTenants(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tenants.Add(float64(n))
}

func (m *SweepMetrics) IncSignal(signal string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(signal).Inc()
}

func (m *SweepMetrics) IncSkip(reason string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(reason).Inc()
}

// ClassifySkipReason maps a per-tenant error onto a bounded label set.
func ClassifySkipReason(err error, noOwner error) string {
	switch {
	case err == nil:
		return ""
	case noOwner != nil && errors.Is(err, noOwner):
		return SkipReasonNoOwnerContact
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SkipReasonDeadline
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, gorm.ErrDuplicatedKey):
		return SkipReasonDB
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return SkipReasonDB
	}
	return SkipReasonUnknown
}
