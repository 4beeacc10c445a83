// Package redis provides a Redis implementation of the cortexa.Ledger
// interface. The rollover, limit check and increment run inside a single
// Lua script, so the whole admission step is one atomic round-trip.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

// Ledger implements cortexa.Ledger using Redis.
type Ledger struct {
	client    redis.UniversalClient
	config    Config
	increment *redis.Script
}

// Config holds Redis ledger configuration.
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "cortexa:")
	KeyPrefix string

	// RecordTTL expires idle ledger records. Records only need to survive
	// their own calendar day; default 48h covers clock skew.
	RecordTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "cortexa:",
		RecordTTL: 48 * time.Hour,
	}
}

// New creates a new Redis ledger.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*Ledger, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "cortexa:"
	}
	if config.RecordTTL <= 0 {
		config.RecordTTL = 48 * time.Hour
	}

	return &Ledger{
		client: client,
		config: config,
		// The script compares the stored day against the requested day and
		// zeroes all three counters before evaluating the increment, so a
		// thundering herd at midnight resets exactly once.
		increment: redis.NewScript(`
			local key = KEYS[1]
			local day = ARGV[1]
			local field = ARGV[2]
			local limit = tonumber(ARGV[3])
			local now = tonumber(ARGV[4])
			local ttl = tonumber(ARGV[5])
			local tier = ARGV[6]
			local teamSize = ARGV[7]

			local storedDay = redis.call('HGET', key, 'day')
			if storedDay ~= day then
				redis.call('HSET', key,
					'day', day,
					'message', 0,
					'image', 0,
					'search', 0,
					'last_reset', now)
			end

			local current = tonumber(redis.call('HGET', key, field)) or 0
			if current >= limit then
				return {current, 'quota_exceeded'}
			end

			redis.call('HSET', key,
				field, current + 1,
				'tier', tier,
				'team_size', teamSize,
				'updated', now)
			if ttl > 0 then
				redis.call('EXPIRE', key, ttl)
			end

			return {current + 1, 'ok'}
		`),
	}, nil
}

// Read implements cortexa.Ledger.
func (l *Ledger) Read(ctx context.Context, userID string, day time.Time) (*cortexa.QuotaRecord, error) {
	fields, err := l.client.HGetAll(ctx, l.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read ledger: %v", cortexa.ErrLedgerUnavailable, err)
	}
	if len(fields) == 0 || fields["day"] != cortexa.DayKey(day) {
		return nil, cortexa.ErrRecordNotFound
	}

	record := &cortexa.QuotaRecord{
		UserID:       userID,
		Day:          cortexa.StartOfDayUTC(day),
		Tier:         cortexa.Tier(fields["tier"]),
		TeamSize:     parseInt(fields["team_size"]),
		MessageCount: parseInt(fields["message"]),
		ImageCount:   parseInt(fields["image"]),
		SearchCount:  parseInt(fields["search"]),
	}
	if ts := parseInt64(fields["last_reset"]); ts > 0 {
		record.LastResetAt = time.Unix(ts, 0).UTC()
	}
	if ts := parseInt64(fields["updated"]); ts > 0 {
		record.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return record, nil
}

// ConditionalIncrement implements cortexa.Ledger via the Lua script.
func (l *Ledger) ConditionalIncrement(ctx context.Context, req *cortexa.IncrementRequest) (int, error) {
	result, err := l.increment.Run(
		ctx,
		l.client,
		[]string{l.key(req.UserID)},
		cortexa.DayKey(req.Day),
		string(req.Resource),
		req.Limit,
		time.Now().UTC().Unix(),
		int64(l.config.RecordTTL.Seconds()),
		string(req.Tier),
		strconv.Itoa(req.TeamSize),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: increment script: %v", cortexa.ErrLedgerUnavailable, err)
	}

	count, status, err := parseIncrementResult(result)
	if err != nil {
		return 0, err
	}
	if status == "quota_exceeded" {
		return count, cortexa.ErrQuotaExceeded
	}
	return count, nil
}

func (l *Ledger) key(userID string) string {
	return l.config.KeyPrefix + "ledger:" + userID
}

func parseIncrementResult(result interface{}) (count int, status string, err error) {
	slice, ok := result.([]interface{})
	if !ok || len(slice) != 2 {
		err = fmt.Errorf("unexpected script result format")
		return
	}
	countInt64, ok := slice[0].(int64)
	if !ok {
		err = fmt.Errorf("failed to parse counter value")
		return
	}
	count = int(countInt64)
	status, ok = slice[1].(string)
	if !ok {
		err = fmt.Errorf("failed to parse status")
	}
	return
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
