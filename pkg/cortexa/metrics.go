package cortexa

import "time"

// Metrics defines the interface for tracking admission and routing operations.
type Metrics interface {
	// RecordAdmission records one admission attempt.
	// Outcome is "admitted", "denied", "fail_open" or "error".
	RecordAdmission(resource Resource, tier Tier, outcome string)

	// RecordLedgerOperation records the duration and status of a ledger call.
	RecordLedgerOperation(operation string, duration time.Duration, err error)

	// RecordRoutingDecision records which processing tier a request routed to.
	RecordRoutingDecision(processingTier string, augmentation bool)

	// RecordSessionEvent records a session cache event
	// (e.g. "hit", "created", "evicted", "reset", "create_failed").
	RecordSessionEvent(event string)

	// RecordReconciliation records the outcome of a reconciliation attempt
	// ("applied", "dropped", "retried").
	RecordReconciliation(outcome string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordAdmission(resource Resource, tier Tier, outcome string)            {}
func (n *NoopMetrics) RecordLedgerOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordRoutingDecision(processingTier string, augmentation bool)          {}
func (n *NoopMetrics) RecordSessionEvent(event string)                                         {}
func (n *NoopMetrics) RecordReconciliation(outcome string)                                     {}
