// Package postgres provides a PostgreSQL implementation of the
// cortexa.Ledger interface. The conditional increment runs in a transaction
// with SELECT FOR UPDATE, so the limit check and the counter write are one
// indivisible operation per (user, day) row.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

// Schema creates the ledger table. Historical day rows are retained;
// expunging them is a retention job outside this core.
const Schema = `
CREATE TABLE IF NOT EXISTS quota_ledger (
	user_id       TEXT        NOT NULL,
	day           DATE        NOT NULL,
	tier          TEXT        NOT NULL DEFAULT '',
	team_size     INT         NOT NULL DEFAULT 1,
	message_count INT         NOT NULL DEFAULT 0,
	image_count   INT         NOT NULL DEFAULT 0,
	search_count  INT         NOT NULL DEFAULT 0,
	last_reset_at TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, day)
);
`

// Ledger implements cortexa.Ledger using PostgreSQL.
type Ledger struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL ledger configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL ledger.
func New(ctx context.Context, config Config) (*Ledger, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Ledger{pool: pool, config: config}, nil
}

// InitSchema creates the ledger table if it does not exist.
func (l *Ledger) InitSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (l *Ledger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

// Read implements cortexa.Ledger.
func (l *Ledger) Read(ctx context.Context, userID string, day time.Time) (*cortexa.QuotaRecord, error) {
	record := &cortexa.QuotaRecord{UserID: userID}
	err := l.pool.QueryRow(ctx,
		`SELECT day, tier, team_size, message_count, image_count, search_count, last_reset_at, updated_at
			FROM quota_ledger WHERE user_id = $1 AND day = $2`,
		userID, cortexa.StartOfDayUTC(day)).Scan(
		&record.Day,
		&record.Tier,
		&record.TeamSize,
		&record.MessageCount,
		&record.ImageCount,
		&record.SearchCount,
		&record.LastResetAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cortexa.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read ledger: %v", cortexa.ErrLedgerUnavailable, err)
	}
	record.Day = cortexa.StartOfDayUTC(record.Day)
	return record, nil
}

// ConditionalIncrement implements cortexa.Ledger. A new day's row is
// materialized lazily by the upsert; its creation is the rollover, and the
// ON CONFLICT DO NOTHING guarantees it happens exactly once under
// concurrent access.
func (l *Ledger) ConditionalIncrement(ctx context.Context, req *cortexa.IncrementRequest) (int, error) {
	column, err := countColumn(req.Resource)
	if err != nil {
		return 0, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin transaction: %v", cortexa.ErrLedgerUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	day := cortexa.StartOfDayUTC(req.Day)
	now := time.Now().UTC()

	_, err = tx.Exec(ctx,
		`INSERT INTO quota_ledger
				(user_id, day, tier, team_size, last_reset_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (user_id, day) DO NOTHING`,
		req.UserID, day, string(req.Tier), req.TeamSize, now)
	if err != nil {
		return 0, fmt.Errorf("%w: ensure ledger row: %v", cortexa.ErrLedgerUnavailable, err)
	}

	var current int
	err = tx.QueryRow(ctx,
		`SELECT `+column+` FROM quota_ledger
			WHERE user_id = $1 AND day = $2
			FOR UPDATE`,
		req.UserID, day).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("%w: lock ledger row: %v", cortexa.ErrLedgerUnavailable, err)
	}

	if current >= req.Limit {
		return current, cortexa.ErrQuotaExceeded
	}

	_, err = tx.Exec(ctx,
		`UPDATE quota_ledger
			SET `+column+` = $1, tier = $2, team_size = $3, updated_at = $4
			WHERE user_id = $5 AND day = $6`,
		current+1, string(req.Tier), req.TeamSize, now, req.UserID, day)
	if err != nil {
		return 0, fmt.Errorf("%w: update ledger row: %v", cortexa.ErrLedgerUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", cortexa.ErrLedgerUnavailable, err)
	}
	return current + 1, nil
}

// countColumn maps a resource to its counter column. The whitelist keeps
// resource names out of SQL string interpolation.
func countColumn(resource cortexa.Resource) (string, error) {
	switch resource {
	case cortexa.ResourceMessage:
		return "message_count", nil
	case cortexa.ResourceImage:
		return "image_count", nil
	case cortexa.ResourceSearch:
		return "search_count", nil
	default:
		return "", cortexa.ErrInvalidResource
	}
}
