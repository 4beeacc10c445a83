package cortexa_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

func TestQuotaExceededError_Unwrap(t *testing.T) {
	err := &cortexa.QuotaExceededError{Resource: cortexa.ResourceImage}

	assert.ErrorIs(t, err, cortexa.ErrQuotaExceeded)
	assert.Equal(t, "quota exceeded for image", err.Error())

	var denied *cortexa.QuotaExceededError
	assert.ErrorAs(t, fmt.Errorf("admit: %w", err), &denied)
	assert.Equal(t, cortexa.ResourceImage, denied.Resource)
}

func TestSentinelErrors_Distinct(t *testing.T) {
	sentinels := []error{
		cortexa.ErrQuotaExceeded,
		cortexa.ErrRecordNotFound,
		cortexa.ErrLedgerUnavailable,
		cortexa.ErrInvalidTier,
		cortexa.ErrInvalidResource,
		cortexa.ErrUnauthenticated,
		cortexa.ErrSessionCreation,
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "%v must not match %v", a, b)
		}
	}
}

func TestWrappedLedgerErrors(t *testing.T) {
	// Infrastructure errors wrap ErrLedgerUnavailable with detail preserved
	err := fmt.Errorf("%w: dial tcp: connection refused", cortexa.ErrLedgerUnavailable)

	assert.ErrorIs(t, err, cortexa.ErrLedgerUnavailable)
	assert.NotErrorIs(t, err, cortexa.ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "connection refused")
}
