package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"busticket/internal/models"
	"busticket/internal/search"
)

// ErrMalformedEvent marks a message that will never decode; redelivery is pointless.
var ErrMalformedEvent = errors.New("malformed event")

// TicketIndexer is satisfied by *search.ElasticsearchClient.
type TicketIndexer interface {
	IndexTicket(ctx context.Context, doc *models.TicketDocument) error
	UpdateTicketStatus(ctx context.Context, ticketID, status string, at time.Time) error
}

type Handlers struct {
	indexer TicketIndexer
	timeout time.Duration
}

func NewHandlers(indexer TicketIndexer, timeout time.Duration) *Handlers {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Handlers{indexer: indexer, timeout: timeout}
}

func decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

func (h *Handlers) HandleTicketBooked(data []byte) error {
	var event models.TicketBookedEvent
	if err := decode(data, &event); err != nil {
		return err
	}
	if event.Ticket.TicketID == "" {
		return fmt.Errorf("%w: ticket id missing", ErrMalformedEvent)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	doc := search.DocumentFromInfo(event.Ticket, event.Timestamp)
	if err := h.indexer.IndexTicket(ctx, doc); err != nil {
		return fmt.Errorf("failed to index ticket %s: %w", event.Ticket.TicketID, err)
	}

	slog.Info("Indexed booked ticket", "ticket_id", event.Ticket.TicketID, "ticket_number", event.Ticket.TicketNumber)
	return nil
}

func (h *Handlers) HandleTicketConfirmed(data []byte) error {
	var event models.TicketConfirmedEvent
	if err := decode(data, &event); err != nil {
		return err
	}
	return h.setStatus(event.TicketID, models.TicketStatusConfirmed, event.Timestamp)
}

func (h *Handlers) HandleTicketCancelled(data []byte) error {
	var event models.TicketCancelledEvent
	if err := decode(data, &event); err != nil {
		return err
	}
	return h.setStatus(event.TicketID, models.TicketStatusCancelled, event.Timestamp)
}

func (h *Handlers) HandlePaymentFailed(data []byte) error {
	var event models.PaymentFailedEvent
	if err := decode(data, &event); err != nil {
		return err
	}
	slog.Warn("Payment failed", "payment_id", event.PaymentID, "ticket_id", event.TicketID, "reason", event.Reason)
	return nil
}

func (h *Handlers) HandlePaymentRefunded(data []byte) error {
	var event models.PaymentRefundedEvent
	if err := decode(data, &event); err != nil {
		return err
	}
	slog.Info("Payment refunded",
		"payment_id", event.PaymentID,
		"ticket_id", event.TicketID,
		"amount", event.Amount.Amount,
		"refunded_total", event.RefundedAmount,
		"status", event.Status)
	return nil
}

func (h *Handlers) setStatus(ticketID, status string, at time.Time) error {
	if ticketID == "" {
		return fmt.Errorf("%w: ticket id missing", ErrMalformedEvent)
	}
	if at.IsZero() {
		at = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.indexer.UpdateTicketStatus(ctx, ticketID, status, at); err != nil {
		return fmt.Errorf("failed to update ticket %s: %w", ticketID, err)
	}
	slog.Info("Updated indexed ticket status", "ticket_id", ticketID, "status", status)
	return nil
}
