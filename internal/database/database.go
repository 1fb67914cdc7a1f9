// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool creates and validates a pgxpool connection pool.
// It retries up to 5 times to accommodate containers starting up.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	// Sensible pool defaults for a small service.
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			pingErr := pool.Ping(ctx)
			if pingErr == nil {
				return pool, nil
			}
			pool.Close()
			err = pingErr
		}
		slog.Warn("db connect failed, retrying", "attempt", attempt, "error", err)
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("connect to postgres: %w", err)
}

// schema is applied at startup. The two partial unique indexes and the
// stock CHECK constraint are load-bearing: the registration-uniqueness,
// ticket-uniqueness, and stock-non-negativity invariants depend on them,
// not on application-level reads.
const schema = `
CREATE TABLE IF NOT EXISTS events (
    id                    TEXT PRIMARY KEY,
    organizer_id          TEXT NOT NULL,
    name                  TEXT NOT NULL,
    description           TEXT NOT NULL DEFAULT '',
    type                  TEXT NOT NULL,
    eligibility           TEXT NOT NULL DEFAULT 'ALL',
    status                TEXT NOT NULL DEFAULT 'DRAFT',
    start_time            TIMESTAMPTZ,
    end_time              TIMESTAMPTZ,
    registration_deadline TIMESTAMPTZ,
    registration_limit    INTEGER NOT NULL DEFAULT 0,
    registration_fee      DOUBLE PRECISION NOT NULL DEFAULT 0,
    registration_count    INTEGER NOT NULL DEFAULT 0,
    revenue               DOUBLE PRECISION NOT NULL DEFAULT 0,
    view_count            INTEGER NOT NULL DEFAULT 0,
    form_locked           BOOLEAN NOT NULL DEFAULT FALSE,
    form_fields           JSONB NOT NULL DEFAULT '[]',
    tags                  TEXT[] NOT NULL DEFAULT '{}',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS events_status_idx ON events (status, organizer_id, type, start_time);

CREATE TABLE IF NOT EXISTS merchandise_items (
    id             TEXT PRIMARY KEY,
    event_id       TEXT NOT NULL REFERENCES events(id),
    name           TEXT NOT NULL,
    size           TEXT NOT NULL DEFAULT '',
    color          TEXT NOT NULL DEFAULT '',
    price          DOUBLE PRECISION NOT NULL CHECK (price >= 0),
    stock          INTEGER NOT NULL CHECK (stock >= 0),
    purchase_limit INTEGER NOT NULL DEFAULT 1 CHECK (purchase_limit >= 1),
    position       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS merchandise_items_event_idx ON merchandise_items (event_id, position);

CREATE TABLE IF NOT EXISTS registrations (
    id                 TEXT PRIMARY KEY,
    event_id           TEXT NOT NULL REFERENCES events(id),
    participant_id     TEXT NOT NULL,
    ticket_id          TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL DEFAULT 'PENDING',
    payment_status     TEXT NOT NULL DEFAULT 'NOT_REQUIRED',
    payment_amount     DOUBLE PRECISION NOT NULL DEFAULT 0,
    form_responses     JSONB NOT NULL DEFAULT '{}',
    order_lines        JSONB,
    order_total        DOUBLE PRECISION NOT NULL DEFAULT 0,
    payment_proof_ref  TEXT NOT NULL DEFAULT '',
    approval_status    TEXT NOT NULL DEFAULT '',
    approval_note      TEXT NOT NULL DEFAULT '',
    attendance_checked BOOLEAN NOT NULL DEFAULT FALSE,
    attendance_at      TIMESTAMPTZ,
    checked_by         TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- One live claim per (event, participant); terminal rows don't count.
CREATE UNIQUE INDEX IF NOT EXISTS registrations_active_uniq
    ON registrations (event_id, participant_id)
    WHERE status IN ('PENDING', 'CONFIRMED');

-- Ticket ids are globally unique once assigned.
CREATE UNIQUE INDEX IF NOT EXISTS registrations_ticket_uniq
    ON registrations (ticket_id)
    WHERE ticket_id <> '';

CREATE INDEX IF NOT EXISTS registrations_event_idx ON registrations (event_id, status);
CREATE INDEX IF NOT EXISTS registrations_participant_idx ON registrations (participant_id, status);
`

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
