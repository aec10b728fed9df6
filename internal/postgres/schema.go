package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Each statement is idempotent so Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS houses (
		id                   TEXT PRIMARY KEY,
		title                TEXT NOT NULL,
		slug                 TEXT NOT NULL UNIQUE,
		description          TEXT NOT NULL,
		images               JSONB NOT NULL DEFAULT '[]',
		base_price_per_night INTEGER NOT NULL DEFAULT 0,
		max_guests           INTEGER NOT NULL DEFAULT 1,
		active               BOOLEAN NOT NULL DEFAULT TRUE,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS extras (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		slug       TEXT NOT NULL UNIQUE,
		price      INTEGER NOT NULL DEFAULT 0,
		price_type TEXT NOT NULL CHECK (price_type IN ('PER_BOOKING','PER_NIGHT','PER_UNIT')),
		active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id          TEXT PRIMARY KEY,
		house_id    TEXT NOT NULL REFERENCES houses(id) ON DELETE CASCADE,
		start_date  DATE NOT NULL,
		end_date    DATE NOT NULL,
		status      TEXT NOT NULL CHECK (status IN ('HOLD','PENDING_PAYMENT','PAID','CANCELLED','MANUAL')),
		hold_until  TIMESTAMPTZ,
		guest_name  TEXT NOT NULL,
		phone       TEXT NOT NULL,
		email       TEXT,
		comment     TEXT,
		extras      JSONB NOT NULL DEFAULT '[]',
		nights      INTEGER NOT NULL,
		total_price INTEGER NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (start_date < end_date)
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_house_dates_idx ON bookings (house_id, start_date, end_date)`,
	`CREATE INDEX IF NOT EXISTS bookings_hold_idx ON bookings (hold_until) WHERE status = 'HOLD'`,
	`CREATE TABLE IF NOT EXISTS payments (
		id               TEXT PRIMARY KEY,
		booking_id       TEXT NOT NULL UNIQUE REFERENCES bookings(id) ON DELETE CASCADE,
		amount           BIGINT NOT NULL,
		status           TEXT NOT NULL,
		tbank_payment_id TEXT,
		payment_url      TEXT,
		raw_init         JSONB,
		raw_webhook      JSONB,
		provider         TEXT NOT NULL DEFAULT 'TBANK',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
