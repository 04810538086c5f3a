package service

import (
	"context"
	"fmt"

	apperrors "busticket/internal/errors"
	"busticket/internal/logger"
	"busticket/internal/models"
	"busticket/internal/repository"

	"github.com/jonboulle/clockwork"
)

// SeatService exposes the seat ledger outside of the booking flow: the seat
// map and the admin block/unblock operations.
type SeatService struct {
	store repository.Store
	clock clockwork.Clock
}

func NewSeatService(store repository.Store, clock clockwork.Clock) *SeatService {
	return &SeatService{store: store, clock: clock}
}

func (s *SeatService) ListSeatMap(ctx context.Context, scheduleID string) (*models.SeatMapResponse, error) {
	resp := &models.SeatMapResponse{ScheduleID: scheduleID}

	err := s.store.View(ctx, func(repos *repository.Repositories) error {
		schedule, err := repos.Schedules.GetScheduleWithDetails(ctx, scheduleID)
		if err != nil {
			return fmt.Errorf("failed to get schedule: %w", err)
		}
		if schedule == nil {
			return apperrors.NotFound(apperrors.CodeScheduleNotFound, "schedule %s not found", scheduleID)
		}

		seats, err := repos.Seats.ListBySchedule(ctx, scheduleID)
		if err != nil {
			return fmt.Errorf("failed to get seats: %w", err)
		}
		resp.Seats = seats
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.Seats == nil {
		resp.Seats = []models.Seat{}
	}
	for i := range resp.Seats {
		if resp.Seats[i].IsAvailable() {
			resp.Available++
		}
	}
	return resp, nil
}

func (s *SeatService) BlockSeat(ctx context.Context, seatID string) (*models.Seat, error) {
	return s.changeSeat(ctx, seatID, "block", (*models.Seat).Block)
}

func (s *SeatService) UnblockSeat(ctx context.Context, seatID string) (*models.Seat, error) {
	return s.changeSeat(ctx, seatID, "unblock", (*models.Seat).Unblock)
}

func (s *SeatService) changeSeat(ctx context.Context, seatID, action string, apply func(*models.Seat) error) (*models.Seat, error) {
	var updated *models.Seat

	err := s.store.WithinTx(ctx, func(repos *repository.Repositories) error {
		seat, err := repos.Seats.GetByIDForUpdate(ctx, seatID)
		if err != nil {
			return fmt.Errorf("failed to get seat: %w", err)
		}
		if seat == nil {
			return apperrors.NotFound(apperrors.CodeSeatNotFound, "seat %s not found", seatID)
		}

		if err := apply(seat); err != nil {
			return err
		}
		seat.UpdatedAt = now(s.clock)

		if err := repos.Seats.Update(ctx, seat); err != nil {
			return fmt.Errorf("failed to update seat: %w", err)
		}
		updated = seat
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("Seat status changed",
		"seat_id", updated.ID, "seat_number", updated.SeatNumber, "action", action, "status", updated.Status)
	return updated, nil
}

// GenerateSeatMap creates rows x columns seats for a schedule that has none yet.
func (s *SeatService) GenerateSeatMap(ctx context.Context, scheduleID string, rows, columns int) ([]models.Seat, error) {
	if rows <= 0 || columns <= 0 {
		return nil, apperrors.Validation(apperrors.CodeInvalidRequest, "rows and columns must be positive")
	}

	var seats []models.Seat
	err := s.store.WithinTx(ctx, func(repos *repository.Repositories) error {
		schedule, err := repos.Schedules.GetScheduleWithDetails(ctx, scheduleID)
		if err != nil {
			return fmt.Errorf("failed to get schedule: %w", err)
		}
		if schedule == nil {
			return apperrors.NotFound(apperrors.CodeScheduleNotFound, "schedule %s not found", scheduleID)
		}

		existing, err := repos.Seats.ListBySchedule(ctx, scheduleID)
		if err != nil {
			return fmt.Errorf("failed to get seats: %w", err)
		}
		if len(existing) > 0 {
			return apperrors.Conflict(apperrors.CodeInvalidRequest,
				"schedule %s already has %d seats", scheduleID, len(existing))
		}

		seats, err = repos.Seats.CreateSeatMap(ctx, scheduleID, rows, columns)
		if err != nil {
			return fmt.Errorf("failed to create seat map: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("Seat map generated", "schedule_id", scheduleID, "seats", len(seats))
	return seats, nil
}
