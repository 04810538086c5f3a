package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"busticket/internal/models"

	"github.com/google/uuid"
)

type TicketRepo struct {
	q querier
}

const ticketNumberConstraint = "tickets_ticket_number_key"

const ticketColumns = `t.id, t.ticket_number, t.schedule_id, t.passenger_id, t.seat_id,
	t.boarding_point, t.dropping_point, t.fare_amount, t.currency, t.booked_at,
	t.is_confirmed, t.confirmed_at, t.is_cancelled, t.cancelled_at, t.cancellation_reason, t.updated_at`

func ticketDest(t *models.Ticket) []any {
	return []any{&t.ID, &t.TicketNumber, &t.ScheduleID, &t.PassengerID, &t.SeatID,
		&t.BoardingPoint, &t.DroppingPoint, &t.Fare.Amount, &t.Fare.Currency, &t.BookedAt,
		&t.IsConfirmed, &t.ConfirmedAt, &t.IsCancelled, &t.CancelledAt, &t.CancellationReason, &t.UpdatedAt}
}

const ticketDetailsQuery = `
	SELECT ` + ticketColumns + `, ` + passengerColumns + `, ` + scheduleColumns + `,
		st.id, st.schedule_id, st.seat_number, st.row_number, st.column_number, st.status, st.ticket_id,
		st.created_at, st.updated_at
	FROM tickets t
	JOIN passengers p ON p.id = t.passenger_id
	JOIN schedules s ON s.id = t.schedule_id
	JOIN seats st ON st.id = t.seat_id`

type detailsRow struct {
	d          models.TicketDetails
	age        sql.NullInt64
	departure  int64
	seatStatus string
	seatTicket sql.NullString
}

func scanDetails(row rowScanner) (*models.TicketDetails, error) {
	var r detailsRow
	dest := ticketDest(&r.d.Ticket)
	dest = append(dest, passengerDest(&r.d.Passenger, &r.age)...)
	dest = append(dest, scheduleDest(&r.d.Schedule, &r.departure)...)
	seat := &r.d.Seat
	dest = append(dest, &seat.ID, &seat.ScheduleID, &seat.SeatNumber, &seat.Row, &seat.Column,
		&r.seatStatus, &r.seatTicket, &seat.CreatedAt, &seat.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	applyAge(&r.d.Passenger, r.age)
	r.d.Schedule.DepartureTime = time.Duration(r.departure) * time.Second
	status, err := models.ParseSeatStatus(r.seatStatus)
	if err != nil {
		return nil, err
	}
	seat.Status = status
	if r.seatTicket.Valid {
		seat.TicketID = &r.seatTicket.String
	}
	return &r.d, nil
}

func (r *TicketRepo) Create(ctx context.Context, t *models.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	query := `
		INSERT INTO tickets (id, ticket_number, schedule_id, passenger_id, seat_id,
			boarding_point, dropping_point, fare_amount, currency, booked_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.q.ExecContext(ctx, query, t.ID, t.TicketNumber, t.ScheduleID, t.PassengerID, t.SeatID,
		t.BoardingPoint, t.DroppingPoint, t.Fare.Amount, t.Fare.Currency, t.BookedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, ticketNumberConstraint) {
			return ErrDuplicateTicketNumber
		}
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

func (r *TicketRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE t.id = $1 FOR UPDATE`

	var t models.Ticket
	if err := r.q.QueryRowContext(ctx, query, id).Scan(ticketDest(&t)...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &t, nil
}

func (r *TicketRepo) getDetails(ctx context.Context, where string, arg any) (*models.TicketDetails, error) {
	d, err := scanDetails(r.q.QueryRowContext(ctx, ticketDetailsQuery+" WHERE "+where, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ticket details: %w", err)
	}
	return d, nil
}

func (r *TicketRepo) GetDetailsByID(ctx context.Context, id string) (*models.TicketDetails, error) {
	return r.getDetails(ctx, "t.id = $1", id)
}

func (r *TicketRepo) GetDetailsByNumber(ctx context.Context, number string) (*models.TicketDetails, error) {
	return r.getDetails(ctx, "t.ticket_number = $1", number)
}

func (r *TicketRepo) Update(ctx context.Context, t *models.Ticket) error {
	query := `
		UPDATE tickets
		SET is_confirmed = $2, confirmed_at = $3, is_cancelled = $4, cancelled_at = $5,
			cancellation_reason = $6, updated_at = $7
		WHERE id = $1`

	res, err := r.q.ExecContext(ctx, query, t.ID, t.IsConfirmed, t.ConfirmedAt, t.IsCancelled,
		t.CancelledAt, t.CancellationReason, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to update ticket %s: not found", t.ID)
	}
	return nil
}

func (r *TicketRepo) ListDepartingBetween(ctx context.Context, from, to time.Time) ([]models.TicketDetails, error) {
	query := ticketDetailsQuery + `
		WHERE NOT t.is_cancelled
			AND (s.schedule_date + s.departure_time) >= $1::timestamp
			AND (s.schedule_date + s.departure_time) < $2::timestamp
		ORDER BY s.schedule_date, s.departure_time, t.ticket_number`

	rows, err := r.q.QueryContext(ctx, query, from.UTC().Format("2006-01-02 15:04:05"), to.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, fmt.Errorf("failed to list departing tickets: %w", err)
	}
	defer rows.Close()

	var out []models.TicketDetails
	for rows.Next() {
		d, err := scanDetails(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket details: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
