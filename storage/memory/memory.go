// Package memory provides an in-memory implementation of the cortexa.Ledger
// interface. It is primarily intended for testing and development; it keeps
// only each user's current-day record, resetting it in place on rollover.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

// Ledger implements cortexa.Ledger using an in-memory map guarded by a
// mutex. The mutex is the fused check-and-increment: no reader can observe
// a record between the limit check and the write.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]*cortexa.QuotaRecord

	// now overrides the reset timestamp source, for tests
	now func() time.Time
}

// New creates a new in-memory ledger.
func New() *Ledger {
	return &Ledger{
		records: make(map[string]*cortexa.QuotaRecord),
		now:     time.Now,
	}
}

// SetTimeSource overrides the clock used for reset timestamps. Test hook.
func (l *Ledger) SetTimeSource(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Read implements cortexa.Ledger.
func (l *Ledger) Read(ctx context.Context, userID string, day time.Time) (*cortexa.QuotaRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.records[userID]
	if !ok || !cortexa.SameCalendarDay(record.Day, day) {
		return nil, cortexa.ErrRecordNotFound
	}

	// Return a copy to prevent external mutations
	recordCopy := *record
	return &recordCopy, nil
}

// ConditionalIncrement implements cortexa.Ledger. Day rollover resets the
// stored record in place, exactly once, inside the same critical section
// that evaluates the increment.
func (l *Ledger) ConditionalIncrement(ctx context.Context, req *cortexa.IncrementRequest) (int, error) {
	if req.Resource != cortexa.ResourceMessage &&
		req.Resource != cortexa.ResourceImage &&
		req.Resource != cortexa.ResourceSearch {
		return 0, cortexa.ErrInvalidResource
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()

	record, ok := l.records[req.UserID]
	if !ok || !cortexa.SameCalendarDay(record.Day, req.Day) {
		record = &cortexa.QuotaRecord{
			UserID:      req.UserID,
			Day:         cortexa.StartOfDayUTC(req.Day),
			LastResetAt: now,
		}
		l.records[req.UserID] = record
	}
	record.Tier = req.Tier
	record.TeamSize = req.TeamSize

	current := record.Count(req.Resource)
	if current >= req.Limit {
		return current, cortexa.ErrQuotaExceeded
	}

	record.SetCount(req.Resource, current+1)
	record.UpdatedAt = now
	return current + 1, nil
}

// Clear removes all data (useful for testing).
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = make(map[string]*cortexa.QuotaRecord)
}
