package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"busticket/internal/database"

	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func newRepositories(q querier) *Repositories {
	return &Repositories{
		Schedules:    &ScheduleRepo{q: q},
		Seats:        &SeatRepo{q: q},
		Passengers:   &PassengerRepo{q: q},
		Tickets:      &TicketRepo{q: q},
		Payments:     &PaymentRepo{q: q},
		Transactions: &TransactionRepo{q: q},
	}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(repos *Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

func (s *PostgresStore) View(ctx context.Context, fn func(repos *Repositories) error) error {
	return fn(newRepositories(s.db))
}

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}
