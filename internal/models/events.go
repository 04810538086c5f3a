package models

import "time"

// NATS Event Types
const (
	EventTicketBooked     = "ticket.booked"
	EventTicketConfirmed  = "ticket.confirmed"
	EventTicketCancelled  = "ticket.cancelled"
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
)

// TicketBookedEvent carries the denormalized ticket so consumers need no lookups
type TicketBookedEvent struct {
	Ticket    TicketInfo `json:"ticket"`
	SeatID    string     `json:"seat_id"`
	Timestamp time.Time  `json:"timestamp"`
}

type TicketConfirmedEvent struct {
	TicketID  string    `json:"ticket_id"`
	PaymentID string    `json:"payment_id"`
	Timestamp time.Time `json:"timestamp"`
}

type TicketCancelledEvent struct {
	TicketID     string    `json:"ticket_id"`
	TicketNumber string    `json:"ticket_number"`
	SeatID       string    `json:"seat_id"`
	Reason       string    `json:"reason"`
	RefundAmount Money     `json:"refund_amount"`
	Timestamp    time.Time `json:"timestamp"`
}

type PaymentCompletedEvent struct {
	PaymentID     string    `json:"payment_id"`
	TicketID      string    `json:"ticket_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        Money     `json:"amount"`
	Gateway       string    `json:"gateway"`
	Timestamp     time.Time `json:"timestamp"`
}

type PaymentFailedEvent struct {
	PaymentID string    `json:"payment_id"`
	TicketID  string    `json:"ticket_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type PaymentRefundedEvent struct {
	PaymentID      string    `json:"payment_id"`
	TicketID       string    `json:"ticket_id"`
	Amount         Money     `json:"amount"`
	RefundedAmount int64     `json:"refunded_amount"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}
