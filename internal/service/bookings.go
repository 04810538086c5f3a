package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	apperrors "busticket/internal/errors"
	"busticket/internal/logger"
	"busticket/internal/metrics"
	"busticket/internal/models"
	"busticket/internal/repository"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const maxTicketNumberAttempts = 3

type BookingService struct {
	store      repository.Store
	clock      clockwork.Clock
	passengers *PassengerRegistry
	publisher  EventPublisher
	notifier   Notifier

	newTicketNumber func(at time.Time) (string, error)
}

func NewBookingService(store repository.Store, clock clockwork.Clock, passengers *PassengerRegistry, publisher EventPublisher, notifier Notifier) *BookingService {
	return &BookingService{
		store:           store,
		clock:           clock,
		passengers:      passengers,
		publisher:       publisher,
		notifier:        notifier,
		newTicketNumber: GenerateTicketNumber,
	}
}

// BookSeat turns a seat selection into an unconfirmed ticket. Either the
// ticket exists and the seat is BOOKED, or nothing was written.
func (s *BookingService) BookSeat(ctx context.Context, req *models.BookSeatRequest) (*models.TicketDetails, error) {
	log := logger.WithContext(ctx)

	if strings.TrimSpace(req.PassengerName) == "" {
		return nil, apperrors.Validation(apperrors.CodeInvalidRequest, "passenger name is required")
	}
	phone, err := models.NewPhoneNumber(req.Phone)
	if err != nil {
		metrics.BookingsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}

	var details *models.TicketDetails
	for attempt := 1; attempt <= maxTicketNumberAttempts; attempt++ {
		details, err = s.book(ctx, req, phone)
		if !errors.Is(err, repository.ErrDuplicateTicketNumber) {
			break
		}
		log.Warn("Ticket number collision, retrying", "attempt", attempt, "schedule_id", req.ScheduleID)
	}
	if err != nil {
		metrics.BookingsTotal.WithLabelValues(outcomeOf(err)).Inc()
		if errors.Is(err, repository.ErrDuplicateTicketNumber) {
			return nil, fmt.Errorf("failed to allocate ticket number after %d attempts: %w", maxTicketNumberAttempts, err)
		}
		return nil, err
	}

	metrics.BookingsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	log.Info("Seat booked",
		"ticket_id", details.Ticket.ID,
		"ticket_number", details.Ticket.TicketNumber,
		"schedule_id", details.Schedule.ID,
		"seat_number", details.Seat.SeatNumber)

	info := details.Info()
	s.notifier.BookingConfirmed(info)

	event := models.TicketBookedEvent{
		Ticket:    info,
		SeatID:    details.Seat.ID,
		Timestamp: now(s.clock),
	}
	if err := s.publisher.Publish(models.EventTicketBooked, event); err != nil {
		log.Error("Failed to publish ticket booked event",
			"error", err,
			"ticket_id", details.Ticket.ID,
			"event_type", models.EventTicketBooked)
	}

	return details, nil
}

func (s *BookingService) book(ctx context.Context, req *models.BookSeatRequest, phone models.PhoneNumber) (*models.TicketDetails, error) {
	var details *models.TicketDetails

	err := s.store.WithinTx(ctx, func(repos *repository.Repositories) error {
		schedule, err := repos.Schedules.GetScheduleWithDetails(ctx, req.ScheduleID)
		if err != nil {
			return fmt.Errorf("failed to get schedule: %w", err)
		}
		if schedule == nil {
			return apperrors.NotFound(apperrors.CodeScheduleNotFound, "schedule %s not found", req.ScheduleID)
		}
		if !schedule.IsActive {
			return apperrors.BusinessRule(apperrors.CodeScheduleInactive, "schedule %s is not active", schedule.ID)
		}
		if !schedule.HasBoardingPoint(req.BoardingPoint) {
			return apperrors.BusinessRule(apperrors.CodeInvalidPoint, "boarding point %q is not served by this schedule", req.BoardingPoint)
		}
		if !schedule.HasDroppingPoint(req.DroppingPoint) {
			return apperrors.BusinessRule(apperrors.CodeInvalidPoint, "dropping point %q is not served by this schedule", req.DroppingPoint)
		}

		seat, err := repos.Seats.GetByIDForUpdate(ctx, req.SeatID)
		if err != nil {
			return fmt.Errorf("failed to get seat: %w", err)
		}
		if seat == nil {
			return apperrors.NotFound(apperrors.CodeSeatNotFound, "seat %s not found", req.SeatID)
		}
		if seat.ScheduleID != schedule.ID {
			return apperrors.BusinessRule(apperrors.CodeSeatScheduleMismatch,
				"seat %s does not belong to schedule %s", seat.SeatNumber, schedule.ID)
		}

		ticketID := uuid.New().String()
		if err := seat.Book(ticketID); err != nil {
			return err
		}

		passenger, err := s.passengers.Resolve(ctx, repos, PassengerDetails{
			Name:   req.PassengerName,
			Phone:  phone,
			Email:  req.Email,
			Gender: req.Gender,
			Age:    req.Age,
		})
		if err != nil {
			return err
		}

		ts := now(s.clock)
		number, err := s.newTicketNumber(ts)
		if err != nil {
			return fmt.Errorf("failed to generate ticket number: %w", err)
		}

		ticket := &models.Ticket{
			ID:            ticketID,
			TicketNumber:  number,
			ScheduleID:    schedule.ID,
			PassengerID:   passenger.ID,
			SeatID:        seat.ID,
			BoardingPoint: req.BoardingPoint,
			DroppingPoint: req.DroppingPoint,
			Fare:          schedule.Fare,
			BookedAt:      ts,
			UpdatedAt:     ts,
		}
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			if errors.Is(err, repository.ErrDuplicateTicketNumber) {
				return err
			}
			return fmt.Errorf("failed to create ticket: %w", err)
		}

		seat.UpdatedAt = ts
		if err := repos.Seats.Update(ctx, seat); err != nil {
			return fmt.Errorf("failed to update seat: %w", err)
		}

		details = &models.TicketDetails{Ticket: *ticket, Passenger: *passenger, Schedule: *schedule, Seat: *seat}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

func (s *BookingService) GetTicket(ctx context.Context, ticketNumber string) (*models.TicketDetails, error) {
	var details *models.TicketDetails
	err := s.store.View(ctx, func(repos *repository.Repositories) error {
		d, err := repos.Tickets.GetDetailsByNumber(ctx, ticketNumber)
		if err != nil {
			return fmt.Errorf("failed to get ticket: %w", err)
		}
		if d == nil {
			return apperrors.NotFound(apperrors.CodeTicketNotFound, "ticket %s not found", ticketNumber)
		}
		details = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

const ticketSuffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateTicketNumber returns TKT-YYYYMMDDHHMMSS-XXXXXX with a random suffix.
func GenerateTicketNumber(at time.Time) (string, error) {
	suffix := make([]byte, 6)
	limit := big.NewInt(int64(len(ticketSuffixAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		suffix[i] = ticketSuffixAlphabet[n.Int64()]
	}
	return fmt.Sprintf("TKT-%s-%s", at.UTC().Format("20060102150405"), suffix), nil
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	if apperrors.KindOf(err) == apperrors.KindInternal {
		return metrics.OutcomeError
	}
	return metrics.OutcomeRejected
}
