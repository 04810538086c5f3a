package models

import "time"

// BookSeatRequest - request to book a single seat on a schedule
type BookSeatRequest struct {
	ScheduleID    string  `json:"schedule_id" binding:"required"`
	SeatID        string  `json:"seat_id" binding:"required"`
	PassengerName string  `json:"passenger_name" binding:"required"`
	Phone         string  `json:"phone" binding:"required"`
	Email         *string `json:"email,omitempty" binding:"omitempty,email"`
	BoardingPoint string  `json:"boarding_point" binding:"required"`
	DroppingPoint string  `json:"dropping_point" binding:"required"`
	Gender        *string `json:"gender,omitempty"`
	Age           *int    `json:"age,omitempty" binding:"omitempty,min=0,max=150"`
}

// BookingResponse - result of a successful booking
type BookingResponse struct {
	TicketID        string    `json:"ticket_id"`
	TicketNumber    string    `json:"ticket_number"`
	SeatNumber      string    `json:"seat_number"`
	Fare            Money     `json:"fare"`
	JourneyDateTime time.Time `json:"journey_datetime"`
	IsConfirmed     bool      `json:"is_confirmed"`
}

// ProcessPaymentRequest - request to pay for a booked ticket
type ProcessPaymentRequest struct {
	TicketID string `json:"ticket_id" binding:"required"`
	Amount   int64  `json:"amount" binding:"required,gt=0"`
	Currency string `json:"currency,omitempty"`
	Method   string `json:"method" binding:"required"`
	Gateway  string `json:"gateway" binding:"required"`
}

// PaymentResult - outcome of a payment attempt. Success=false with a nil
// error means the gateway declined.
type PaymentResult struct {
	Success        bool     `json:"success"`
	AlreadyPaid    bool     `json:"already_paid,omitempty"`
	RefundRequired bool     `json:"refund_required,omitempty"`
	Message        string   `json:"message"`
	Payment        *Payment `json:"payment,omitempty"`
}

// RefundPaymentRequest - refund part or all of a completed payment
type RefundPaymentRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Reason string `json:"reason"`
}

type RefundResult struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	Payment     *Payment     `json:"payment,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

// PaymentDetailsResponse - payment with its full transaction log
type PaymentDetailsResponse struct {
	Payment      Payment       `json:"payment"`
	Transactions []Transaction `json:"transactions"`
}

// CancelBookingRequest - cancellation by the passenger
type CancelBookingRequest struct {
	TicketNumber string `json:"ticket_number" binding:"required"`
	Phone        string `json:"phone" binding:"required"`
	Reason       string `json:"reason"`
}

// CancellationResult - soft outcome of a cancellation request
type CancellationResult struct {
	Success          bool       `json:"success"`
	Message          string     `json:"message"`
	TicketNumber     string     `json:"ticket_number,omitempty"`
	RefundAmount     Money      `json:"refund_amount"`
	RefundPercentage int        `json:"refund_percentage"`
	RefundStatus     string     `json:"refund_status,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
}

// SeatMapResponse - seats of a schedule with their statuses
type SeatMapResponse struct {
	ScheduleID string `json:"schedule_id"`
	Available  int    `json:"available"`
	Seats      []Seat `json:"seats"`
}

// TicketSearchResponse - page of indexed tickets
type TicketSearchResponse struct {
	Total   int64            `json:"total"`
	Tickets []TicketDocument `json:"tickets"`
}

// TicketDocument is the denormalized ticket stored in the search index
type TicketDocument struct {
	TicketID        string    `json:"ticket_id"`
	TicketNumber    string    `json:"ticket_number"`
	ScheduleID      string    `json:"schedule_id"`
	PassengerName   string    `json:"passenger_name"`
	Phone           string    `json:"phone"`
	RouteName       string    `json:"route_name"`
	Origin          string    `json:"origin"`
	Destination     string    `json:"destination"`
	SeatNumber      string    `json:"seat_number"`
	JourneyDateTime time.Time `json:"journey_datetime"`
	FareAmount      int64     `json:"fare_amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Ticket lifecycle labels used in the search index
const (
	TicketStatusBooked    = "booked"
	TicketStatusConfirmed = "confirmed"
	TicketStatusCancelled = "cancelled"
)
