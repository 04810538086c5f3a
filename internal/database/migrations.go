package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createExtensions,
		createSchedulesTable,
		createSeatsTable,
		createPassengersTable,
		createTicketsTable,
		createPaymentsTable,
		createPaymentTransactionsTable,
		createIndexes,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createExtensions = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`

const createSchedulesTable = `
CREATE TABLE IF NOT EXISTS schedules (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    route_name VARCHAR(200) NOT NULL,
    origin VARCHAR(100) NOT NULL,
    destination VARCHAR(100) NOT NULL,
    bus_number VARCHAR(50) NOT NULL,
    bus_type VARCHAR(50) NOT NULL DEFAULT 'standard',
    schedule_date DATE NOT NULL,
    departure_time TIME NOT NULL,
    fare_amount BIGINT NOT NULL CHECK (fare_amount >= 0),
    currency CHAR(3) NOT NULL,
    boarding_points TEXT[] NOT NULL DEFAULT '{}',
    dropping_points TEXT[] NOT NULL DEFAULT '{}',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createSeatsTable = `
CREATE TABLE IF NOT EXISTS seats (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    schedule_id UUID NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
    seat_number VARCHAR(10) NOT NULL,
    row_number INTEGER NOT NULL,
    column_number INTEGER NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'AVAILABLE',
    ticket_id UUID,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE(schedule_id, seat_number),
    CHECK (status IN ('AVAILABLE', 'BOOKED', 'SOLD', 'BLOCKED'))
);`

const createPassengersTable = `
CREATE TABLE IF NOT EXISTS passengers (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    name VARCHAR(200) NOT NULL,
    phone VARCHAR(15) NOT NULL UNIQUE,
    email VARCHAR(255),
    gender VARCHAR(20),
    age INTEGER,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createTicketsTable = `
CREATE TABLE IF NOT EXISTS tickets (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    ticket_number VARCHAR(40) NOT NULL,
    schedule_id UUID NOT NULL REFERENCES schedules(id),
    passenger_id UUID NOT NULL REFERENCES passengers(id),
    seat_id UUID NOT NULL REFERENCES seats(id),
    boarding_point VARCHAR(200) NOT NULL,
    dropping_point VARCHAR(200) NOT NULL,
    fare_amount BIGINT NOT NULL,
    currency CHAR(3) NOT NULL,
    booked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
    confirmed_at TIMESTAMPTZ,
    is_cancelled BOOLEAN NOT NULL DEFAULT FALSE,
    cancelled_at TIMESTAMPTZ,
    cancellation_reason TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT tickets_ticket_number_key UNIQUE (ticket_number),
    CHECK (NOT (is_confirmed AND is_cancelled AND confirmed_at > cancelled_at))
);`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    ticket_id UUID NOT NULL REFERENCES tickets(id),
    amount BIGINT NOT NULL CHECK (amount > 0),
    currency CHAR(3) NOT NULL,
    method VARCHAR(20) NOT NULL,
    gateway VARCHAR(20) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    transaction_id VARCHAR(64) NOT NULL UNIQUE,
    gateway_transaction_id VARCHAR(255),
    refunded_amount BIGINT NOT NULL DEFAULT 0,
    failure_reason TEXT,
    refund_reason TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ,

    CHECK (refunded_amount >= 0 AND refunded_amount <= amount),
    CHECK (method IN ('card', 'mobile_money', 'cash', 'bank_transfer')),
    CHECK (status IN ('PENDING', 'PROCESSING', 'COMPLETED', 'FAILED', 'CANCELLED', 'REFUNDED', 'PARTIALLY_REFUNDED'))
);`

const createPaymentTransactionsTable = `
CREATE TABLE IF NOT EXISTS payment_transactions (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    payment_id UUID NOT NULL REFERENCES payments(id) ON DELETE CASCADE,
    action VARCHAR(10) NOT NULL,
    amount BIGINT NOT NULL,
    currency CHAR(3) NOT NULL,
    success BOOLEAN NOT NULL,
    gateway_transaction_id VARCHAR(255),
    response_code VARCHAR(100),
    message TEXT,
    raw_payload JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (action IN ('charge', 'refund', 'verify'))
);
CREATE OR REPLACE RULE payment_transactions_no_update AS
    ON UPDATE TO payment_transactions DO INSTEAD NOTHING;`

const createIndexes = `
CREATE INDEX IF NOT EXISTS schedules_date_idx ON schedules (schedule_date);
CREATE INDEX IF NOT EXISTS tickets_schedule_idx ON tickets (schedule_id);
CREATE UNIQUE INDEX IF NOT EXISTS tickets_live_seat_idx ON tickets (seat_id) WHERE NOT is_cancelled;
CREATE INDEX IF NOT EXISTS payments_ticket_idx ON payments (ticket_id);
CREATE INDEX IF NOT EXISTS payment_transactions_payment_idx ON payment_transactions (payment_id, created_at);`
