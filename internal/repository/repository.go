package repository

import (
	"context"
	"errors"
	"time"

	"busticket/internal/models"
)

// Lookups return (nil, nil) when the row does not exist.

var ErrDuplicateTicketNumber = errors.New("ticket number already exists")

type ScheduleRepository interface {
	GetScheduleWithDetails(ctx context.Context, id string) (*models.Schedule, error)
	Create(ctx context.Context, s *models.Schedule) error
}

type SeatRepository interface {
	GetByID(ctx context.Context, id string) (*models.Seat, error)
	// GetByIDForUpdate locks the seat row until the transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Seat, error)
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.Seat, error)
	Update(ctx context.Context, seat *models.Seat) error
	CreateSeatMap(ctx context.Context, scheduleID string, rows, columns int) ([]models.Seat, error)
}

type PassengerRepository interface {
	GetByPhone(ctx context.Context, phone models.PhoneNumber) (*models.Passenger, error)
	// Upsert inserts p or merges it into the passenger already holding its
	// phone, in one statement. Nil optional fields keep the stored value.
	// p is refreshed from the stored row.
	Upsert(ctx context.Context, p *models.Passenger) error
}

type TicketRepository interface {
	// Create returns ErrDuplicateTicketNumber when the number is taken.
	Create(ctx context.Context, t *models.Ticket) error
	GetByIDForUpdate(ctx context.Context, id string) (*models.Ticket, error)
	GetDetailsByID(ctx context.Context, id string) (*models.TicketDetails, error)
	GetDetailsByNumber(ctx context.Context, number string) (*models.TicketDetails, error)
	Update(ctx context.Context, t *models.Ticket) error
	// ListDepartingBetween returns live tickets whose journey starts in [from, to).
	ListDepartingBetween(ctx context.Context, from, to time.Time) ([]models.TicketDetails, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Payment, error)
	// GetSucceededByTicket returns the payment whose charge went through, if any.
	GetSucceededByTicket(ctx context.Context, ticketID string) (*models.Payment, error)
	ListByTicket(ctx context.Context, ticketID string) ([]models.Payment, error)
	Update(ctx context.Context, p *models.Payment) error
}

// TransactionRepository is append-only.
type TransactionRepository interface {
	Append(ctx context.Context, t *models.Transaction) error
	ListByPayment(ctx context.Context, paymentID string) ([]models.Transaction, error)
}

type Repositories struct {
	Schedules    ScheduleRepository
	Seats        SeatRepository
	Passengers   PassengerRepository
	Tickets      TicketRepository
	Payments     PaymentRepository
	Transactions TransactionRepository
}

// Store runs units of work. WithinTx commits only when fn returns nil;
// View is for reads that need no atomicity.
type Store interface {
	WithinTx(ctx context.Context, fn func(repos *Repositories) error) error
	View(ctx context.Context, fn func(repos *Repositories) error) error
}
