package cortexa

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded is returned when a daily limit is reached
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrRecordNotFound is returned when no ledger record exists for the day
	ErrRecordNotFound = errors.New("quota record not found")

	// ErrLedgerUnavailable is returned when the backing store is unreachable
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrInvalidTier is returned for an unknown tier with no default configured
	ErrInvalidTier = errors.New("invalid tier")

	// ErrInvalidResource is returned for an unknown resource type
	ErrInvalidResource = errors.New("invalid resource")

	// ErrUnauthenticated is returned when the request carries no user id
	ErrUnauthenticated = errors.New("unauthenticated request")

	// ErrSessionCreation is returned when a backend session could not be created
	ErrSessionCreation = errors.New("session creation failed")
)

// QuotaExceededError reports which resource was denied. It unwraps to
// ErrQuotaExceeded, so errors.Is(err, ErrQuotaExceeded) works on it.
type QuotaExceededError struct {
	Resource Resource
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s", e.Resource)
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}
