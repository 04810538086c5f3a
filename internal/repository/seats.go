package repository

import (
	"context"
	"database/sql"
	"fmt"

	"busticket/internal/models"

	"github.com/google/uuid"
)

type SeatRepo struct {
	q querier
}

const seatColumns = `id, schedule_id, seat_number, row_number, column_number, status, ticket_id, created_at, updated_at`

func scanSeat(row rowScanner) (*models.Seat, error) {
	var seat models.Seat
	var status string
	var ticketID sql.NullString

	if err := row.Scan(&seat.ID, &seat.ScheduleID, &seat.SeatNumber, &seat.Row, &seat.Column,
		&status, &ticketID, &seat.CreatedAt, &seat.UpdatedAt); err != nil {
		return nil, err
	}

	st, err := models.ParseSeatStatus(status)
	if err != nil {
		return nil, err
	}
	seat.Status = st
	if ticketID.Valid {
		seat.TicketID = &ticketID.String
	}
	return &seat, nil
}

func (r *SeatRepo) getOne(ctx context.Context, query string, id string) (*models.Seat, error) {
	seat, err := scanSeat(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get seat: %w", err)
	}
	return seat, nil
}

func (r *SeatRepo) GetByID(ctx context.Context, id string) (*models.Seat, error) {
	return r.getOne(ctx, `SELECT `+seatColumns+` FROM seats WHERE id = $1`, id)
}

func (r *SeatRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Seat, error) {
	return r.getOne(ctx, `SELECT `+seatColumns+` FROM seats WHERE id = $1 FOR UPDATE`, id)
}

func (r *SeatRepo) ListBySchedule(ctx context.Context, scheduleID string) ([]models.Seat, error) {
	query := `SELECT ` + seatColumns + `
		FROM seats
		WHERE schedule_id = $1
		ORDER BY row_number, column_number`

	rows, err := r.q.QueryContext(ctx, query, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list seats: %w", err)
	}
	defer rows.Close()

	var seats []models.Seat
	for rows.Next() {
		seat, err := scanSeat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		seats = append(seats, *seat)
	}
	return seats, rows.Err()
}

func (r *SeatRepo) Update(ctx context.Context, seat *models.Seat) error {
	query := `
		UPDATE seats
		SET status = $2, ticket_id = $3, updated_at = $4
		WHERE id = $1`

	res, err := r.q.ExecContext(ctx, query, seat.ID, string(seat.Status), seat.TicketID, seat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update seat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to update seat %s: not found", seat.ID)
	}
	return nil
}

// CreateSeatMap lays out rows x columns seats labelled A1, A2, ... B1, ...
func (r *SeatRepo) CreateSeatMap(ctx context.Context, scheduleID string, rows, columns int) ([]models.Seat, error) {
	query := `
		INSERT INTO seats (id, schedule_id, seat_number, row_number, column_number, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	seats := make([]models.Seat, 0, rows*columns)
	for row := 1; row <= rows; row++ {
		for col := 1; col <= columns; col++ {
			seat := models.Seat{
				ID:         uuid.New().String(),
				ScheduleID: scheduleID,
				SeatNumber: models.SeatLabel(row, col),
				Row:        row,
				Column:     col,
				Status:     models.SeatAvailable,
			}
			err := r.q.QueryRowContext(ctx, query, seat.ID, seat.ScheduleID, seat.SeatNumber,
				seat.Row, seat.Column, string(seat.Status)).Scan(&seat.CreatedAt, &seat.UpdatedAt)
			if err != nil {
				return nil, fmt.Errorf("failed to create seat %s: %w", seat.SeatNumber, err)
			}
			seats = append(seats, seat)
		}
	}
	return seats, nil
}
