package service

import (
	"context"
	"fmt"
	"time"

	"busticket/internal/logger"
	"busticket/internal/metrics"
	"busticket/internal/models"
	"busticket/internal/repository"

	"github.com/jonboulle/clockwork"
)

// Refund policy thresholds, in hours before departure.
const (
	minCancelHours  = 2
	fullRefundHours = 24
)

type RefundDecision struct {
	Allowed    bool
	Percentage int
	Amount     models.Money
	Label      string
	Reason     string
}

// EvaluateRefund applies the cancellation policy to a fare given the hours
// left until departure. The refund is rounded down to whole minor units.
func EvaluateRefund(fare models.Money, hoursUntilDeparture float64) RefundDecision {
	switch {
	case hoursUntilDeparture < 0:
		return RefundDecision{Reason: "cannot cancel after departure", Amount: fare.Percent(0)}
	case hoursUntilDeparture < minCancelHours:
		return RefundDecision{Reason: "cannot cancel less than 2 hours before departure", Amount: fare.Percent(0)}
	case hoursUntilDeparture >= fullRefundHours:
		return RefundDecision{Allowed: true, Percentage: 100, Amount: fare.Percent(100), Label: "Full refund"}
	default:
		return RefundDecision{Allowed: true, Percentage: 50, Amount: fare.Percent(50), Label: "50% refund"}
	}
}

type CancellationService struct {
	store     repository.Store
	clock     clockwork.Clock
	publisher EventPublisher
	notifier  Notifier
}

func NewCancellationService(store repository.Store, clock clockwork.Clock, publisher EventPublisher, notifier Notifier) *CancellationService {
	return &CancellationService{store: store, clock: clock, publisher: publisher, notifier: notifier}
}

func rejected(ticketNumber, msg string) *models.CancellationResult {
	metrics.CancellationsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
	return &models.CancellationResult{Success: false, Message: msg, TicketNumber: ticketNumber}
}

// CancelBooking cancels a ticket on behalf of its passenger and releases the
// seat. Policy refusals come back as an unsuccessful result, not an error.
// No money moves here; the refund amount is for a later RefundPayment.
func (s *CancellationService) CancelBooking(ctx context.Context, req *models.CancelBookingRequest) (*models.CancellationResult, error) {
	log := logger.WithContext(ctx)

	var result *models.CancellationResult
	var details *models.TicketDetails
	var decision RefundDecision

	err := s.store.WithinTx(ctx, func(repos *repository.Repositories) error {
		d, err := repos.Tickets.GetDetailsByNumber(ctx, req.TicketNumber)
		if err != nil {
			return fmt.Errorf("failed to get ticket: %w", err)
		}
		if d == nil {
			result = rejected(req.TicketNumber, "ticket not found")
			return nil
		}
		if !d.Passenger.Phone.Matches(req.Phone) {
			result = rejected(req.TicketNumber, "phone number does not match the booking")
			return nil
		}

		ticket, err := repos.Tickets.GetByIDForUpdate(ctx, d.Ticket.ID)
		if err != nil {
			return fmt.Errorf("failed to get ticket: %w", err)
		}
		if ticket.IsCancelled {
			result = rejected(req.TicketNumber, "ticket is already cancelled")
			result.CancelledAt = ticket.CancelledAt
			return nil
		}

		ts := now(s.clock)
		hours := HoursUntil(d.Schedule.JourneyDateTime(), ts)
		decision = EvaluateRefund(ticket.Fare, hours)
		if !decision.Allowed {
			result = rejected(req.TicketNumber, decision.Reason)
			return nil
		}

		if err := ticket.Cancel(ts, req.Reason); err != nil {
			return err
		}
		ticket.UpdatedAt = ts
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return fmt.Errorf("failed to update ticket: %w", err)
		}

		seat, err := repos.Seats.GetByIDForUpdate(ctx, ticket.SeatID)
		if err != nil {
			return fmt.Errorf("failed to get seat: %w", err)
		}
		if seat != nil && seat.IsHeld() && seat.TicketID != nil && *seat.TicketID == ticket.ID {
			if err := seat.CancelBooking(); err != nil {
				return err
			}
			seat.UpdatedAt = ts
			if err := repos.Seats.Update(ctx, seat); err != nil {
				return fmt.Errorf("failed to update seat: %w", err)
			}
			d.Seat = *seat
		} else {
			log.Warn("Seat not linked to cancelled ticket, left unchanged", "ticket_id", ticket.ID, "seat_id", ticket.SeatID)
		}

		d.Ticket = *ticket
		details = d
		result = &models.CancellationResult{
			Success:          true,
			Message:          decision.Label,
			TicketNumber:     ticket.TicketNumber,
			RefundAmount:     decision.Amount,
			RefundPercentage: decision.Percentage,
			RefundStatus:     "pending",
			CancelledAt:      ticket.CancelledAt,
		}
		return nil
	})
	if err != nil {
		metrics.CancellationsTotal.WithLabelValues(outcomeOf(err)).Inc()
		return nil, err
	}
	if details == nil {
		log.Info("Cancellation refused", "ticket_number", req.TicketNumber, "reason", result.Message)
		return result, nil
	}

	metrics.CancellationsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	log.Info("Ticket cancelled",
		"ticket_id", details.Ticket.ID,
		"ticket_number", details.Ticket.TicketNumber,
		"refund_percentage", decision.Percentage,
		"refund_amount", decision.Amount.Amount)

	s.notifier.BookingCancelled(details.Info(), decision.Amount)

	event := models.TicketCancelledEvent{
		TicketID:     details.Ticket.ID,
		TicketNumber: details.Ticket.TicketNumber,
		SeatID:       details.Seat.ID,
		Reason:       req.Reason,
		RefundAmount: decision.Amount,
		Timestamp:    now(s.clock),
	}
	if err := s.publisher.Publish(models.EventTicketCancelled, event); err != nil {
		log.Error("Failed to publish ticket cancelled event",
			"error", err, "ticket_id", details.Ticket.ID, "event_type", models.EventTicketCancelled)
	}

	return result, nil
}

// HoursUntil is the signed number of hours from at to the journey start.
func HoursUntil(journey, at time.Time) float64 {
	return journey.Sub(at).Hours()
}
