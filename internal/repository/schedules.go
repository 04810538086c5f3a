package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"busticket/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ScheduleRepo struct {
	q querier
}

// departure_time is a TIME column; it travels as seconds past midnight.
const scheduleColumns = `s.id, s.route_name, s.origin, s.destination, s.bus_number, s.bus_type,
	s.schedule_date, EXTRACT(EPOCH FROM s.departure_time)::bigint, s.fare_amount, s.currency,
	s.boarding_points, s.dropping_points, s.is_active, s.created_at`

func scheduleDest(s *models.Schedule, departure *int64) []any {
	return []any{&s.ID, &s.RouteName, &s.Origin, &s.Destination, &s.BusNumber, &s.BusType,
		&s.Date, departure, &s.Fare.Amount, &s.Fare.Currency,
		pq.Array(&s.BoardingPoints), pq.Array(&s.DroppingPoints), &s.IsActive, &s.CreatedAt}
}

func (r *ScheduleRepo) GetScheduleWithDetails(ctx context.Context, id string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules s WHERE s.id = $1`

	var schedule models.Schedule
	var departure int64
	err := r.q.QueryRowContext(ctx, query, id).Scan(scheduleDest(&schedule, &departure)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	schedule.DepartureTime = time.Duration(departure) * time.Second
	return &schedule, nil
}

func (r *ScheduleRepo) Create(ctx context.Context, s *models.Schedule) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Fare.Currency == "" {
		s.Fare.Currency = models.DefaultCurrency
	}

	query := `
		INSERT INTO schedules (id, route_name, origin, destination, bus_number, bus_type,
			schedule_date, departure_time, fare_amount, currency, boarding_points, dropping_points, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::time, $9, $10, $11, $12, $13)
		RETURNING created_at`

	err := r.q.QueryRowContext(ctx, query,
		s.ID, s.RouteName, s.Origin, s.Destination, s.BusNumber, s.BusType,
		s.Date.Format("2006-01-02"), formatTimeOfDay(s.DepartureTime), s.Fare.Amount, s.Fare.Currency,
		pq.Array(s.BoardingPoints), pq.Array(s.DroppingPoints), s.IsActive,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

func formatTimeOfDay(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
