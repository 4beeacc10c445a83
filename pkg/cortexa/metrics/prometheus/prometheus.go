package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

// Metrics implements cortexa.Metrics using Prometheus.
type Metrics struct {
	admissionsTotal      *prometheus.CounterVec
	ledgerOpsDuration    *prometheus.HistogramVec
	ledgerOpsErrors      *prometheus.CounterVec
	routingDecisions     *prometheus.CounterVec
	sessionEvents        *prometheus.CounterVec
	reconciliationsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		admissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Total number of admission attempts.",
		}, []string{"resource", "tier", "outcome"}),

		ledgerOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_duration_seconds",
			Help:      "Latency of ledger operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		ledgerOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operation_errors_total",
			Help:      "Total number of ledger operation errors.",
		}, []string{"operation"}),

		routingDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Total number of routing decisions by processing tier.",
		}, []string{"processing_tier", "augmentation"}),

		sessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Total number of session affinity cache events.",
		}, []string{"event"}),

		reconciliationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Total number of fail-open reconciliation attempts.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) RecordAdmission(resource cortexa.Resource, tier cortexa.Tier, outcome string) {
	m.admissionsTotal.WithLabelValues(string(resource), string(tier), outcome).Inc()
}

func (m *Metrics) RecordLedgerOperation(operation string, duration time.Duration, err error) {
	m.ledgerOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.ledgerOpsErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordRoutingDecision(processingTier string, augmentation bool) {
	m.routingDecisions.WithLabelValues(processingTier, strconv.FormatBool(augmentation)).Inc()
}

func (m *Metrics) RecordSessionEvent(event string) {
	m.sessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordReconciliation(outcome string) {
	m.reconciliationsTotal.WithLabelValues(outcome).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default
// Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
