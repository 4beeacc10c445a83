// Package firestore provides a Firestore implementation of the
// cortexa.Ledger interface. Each (user, day) pair gets its own document, so
// rollover is simply the first transaction of the new day creating a fresh
// document; prior days remain for usage history.
package firestore

import (
	"context"
	"fmt"
	"math"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

// Ledger implements cortexa.Ledger using Google Cloud Firestore.
type Ledger struct {
	client     *firestore.Client
	collection string
}

// Config holds Firestore ledger configuration.
type Config struct {
	// Collection is the Firestore collection for daily quota records
	// Default: "quota_ledger"
	Collection string
}

// New creates a new Firestore ledger.
func New(client *firestore.Client, config Config) (*Ledger, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if config.Collection == "" {
		config.Collection = "quota_ledger"
	}

	return &Ledger{
		client:     client,
		collection: config.Collection,
	}, nil
}

// Read implements cortexa.Ledger.
func (l *Ledger) Read(ctx context.Context, userID string, day time.Time) (*cortexa.QuotaRecord, error) {
	snap, err := l.recordDoc(userID, day).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, cortexa.ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: read ledger: %v", cortexa.ErrLedgerUnavailable, err)
	}
	if !snap.Exists() {
		return nil, cortexa.ErrRecordNotFound
	}

	data := snap.Data()
	return &cortexa.QuotaRecord{
		UserID:       userID,
		Day:          cortexa.StartOfDayUTC(day),
		Tier:         cortexa.Tier(getString(data, "tier")),
		TeamSize:     getInt(data, "teamSize"),
		MessageCount: getInt(data, "messageCount"),
		ImageCount:   getInt(data, "imageCount"),
		SearchCount:  getInt(data, "searchCount"),
		LastResetAt:  getTime(data, "lastResetAt"),
		UpdatedAt:    getTime(data, "updatedAt"),
	}, nil
}

// ConditionalIncrement implements cortexa.Ledger. The read, limit check and
// write run inside a Firestore transaction; contended transactions retry, so
// two concurrent calls at the limit boundary serialize.
func (l *Ledger) ConditionalIncrement(ctx context.Context, req *cortexa.IncrementRequest) (int, error) {
	field, err := countField(req.Resource)
	if err != nil {
		return 0, err
	}

	doc := l.recordDoc(req.UserID, req.Day)
	var newCount int

	err = l.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		now := time.Now().UTC()
		current := 0
		lastReset := now
		if err == nil && snap.Exists() {
			data := snap.Data()
			current = getInt(data, field)
			if t := getTime(data, "lastResetAt"); !t.IsZero() {
				lastReset = t
			}
		}

		if current >= req.Limit {
			newCount = current
			return cortexa.ErrQuotaExceeded
		}
		newCount = current + 1

		return tx.Set(doc, map[string]interface{}{
			"userId":      req.UserID,
			"day":         cortexa.DayKey(req.Day),
			"tier":        string(req.Tier),
			"teamSize":    req.TeamSize,
			field:         newCount,
			"lastResetAt": lastReset,
			"updatedAt":   now,
		}, firestore.MergeAll)
	})
	if err != nil {
		if err == cortexa.ErrQuotaExceeded {
			return newCount, cortexa.ErrQuotaExceeded
		}
		if isUnavailable(err) {
			return 0, fmt.Errorf("%w: increment: %v", cortexa.ErrLedgerUnavailable, err)
		}
		return 0, fmt.Errorf("failed to increment ledger: %w", err)
	}

	return newCount, nil
}

// recordDoc returns the document holding one user's counters for one day.
func (l *Ledger) recordDoc(userID string, day time.Time) *firestore.DocumentRef {
	docID := fmt.Sprintf("%s_%s", userID, cortexa.DayKey(day))
	return l.client.Collection(l.collection).Doc(docID)
}

func isUnavailable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Internal:
		return true
	default:
		return false
	}
}

func countField(resource cortexa.Resource) (string, error) {
	switch resource {
	case cortexa.ResourceMessage:
		return "messageCount", nil
	case cortexa.ResourceImage:
		return "imageCount", nil
	case cortexa.ResourceSearch:
		return "searchCount", nil
	default:
		return "", cortexa.ErrInvalidResource
	}
}

// Helper functions for type conversion from Firestore data

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getInt(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(math.Round(v))
	default:
		return 0
	}
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
