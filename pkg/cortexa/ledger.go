package cortexa

import (
	"context"
	"time"
)

// Ledger defines the interface for quota persistence.
// All methods use concrete types from this package to avoid import cycles.
type Ledger interface {
	// Read retrieves the record for a user and UTC calendar day.
	// Returns ErrRecordNotFound when no record exists for that day.
	Read(ctx context.Context, userID string, day time.Time) (*QuotaRecord, error)

	// ConditionalIncrement increments the counter for req.Resource only if
	// the pre-increment value is strictly less than req.Limit, as a single
	// indivisible operation. A separate read-check-write sequence is racy
	// across concurrent requests from the same user and silently permits
	// overshoot; the check and the increment must be fused.
	//
	// Day rollover happens inside the same atomic section: when the stored
	// record belongs to an earlier calendar day than req.Day, all counters
	// are reset (or a fresh day record is materialized) exactly once before
	// the increment is evaluated.
	//
	// Returns the post-operation counter value. On denial returns the
	// unchanged current value and ErrQuotaExceeded. Infrastructure failures
	// wrap ErrLedgerUnavailable.
	ConditionalIncrement(ctx context.Context, req *IncrementRequest) (int, error)
}

// IncrementRequest describes one conditional increment.
type IncrementRequest struct {
	UserID string

	// Day is the start of the UTC calendar day the increment applies to
	Day time.Time

	Resource Resource

	// Limit is the effective limit (base allowance * team size) the
	// pre-increment count is checked against
	Limit int

	// Tier and TeamSize are recorded on the ledger entry for interpretation
	Tier     Tier
	TeamSize int
}
