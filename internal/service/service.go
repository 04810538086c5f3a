package service

import (
	"context"
	"time"

	"busticket/internal/external"
	"busticket/internal/models"
	"busticket/internal/repository"

	"github.com/jonboulle/clockwork"
)

// EventPublisher is satisfied by *messaging.NATSClient.
type EventPublisher interface {
	Publish(subject string, data interface{}) error
}

// Notifier is fire-and-forget; implementations must not block the caller.
type Notifier interface {
	BookingConfirmed(info models.TicketInfo)
	BookingCancelled(info models.TicketInfo, refund models.Money)
	JourneyReminder(info models.TicketInfo, hoursBefore int)
}

// Locker grants short-lived exclusive leases. ok is false when someone
// else holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// ReminderDeduper reports first is true only for the first caller of a key.
type ReminderDeduper interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (first bool, err error)
}

type Deps struct {
	Store          repository.Store
	Clock          clockwork.Clock
	Publisher      EventPublisher
	Notifier       Notifier
	Gateways       *external.Registry
	Locker         Locker
	Deduper        ReminderDeduper
	GatewayTimeout time.Duration
}

type Services struct {
	Seats         *SeatService
	Passengers    *PassengerRegistry
	Bookings      *BookingService
	Payments      *PaymentService
	Cancellations *CancellationService
	Reminders     *ReminderService
}

func NewServices(deps Deps) *Services {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Gateways == nil {
		deps.Gateways = external.NewRegistry()
	}
	if deps.GatewayTimeout <= 0 {
		deps.GatewayTimeout = 30 * time.Second
	}

	passengers := NewPassengerRegistry(deps.Clock)

	return &Services{
		Seats:         NewSeatService(deps.Store, deps.Clock),
		Passengers:    passengers,
		Bookings:      NewBookingService(deps.Store, deps.Clock, passengers, deps.Publisher, deps.Notifier),
		Payments:      NewPaymentService(deps.Store, deps.Clock, deps.Gateways, deps.Locker, deps.Publisher, deps.GatewayTimeout),
		Cancellations: NewCancellationService(deps.Store, deps.Clock, deps.Publisher, deps.Notifier),
		Reminders:     NewReminderService(deps.Store, deps.Clock, deps.Notifier, deps.Deduper),
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) error { return nil }

type nopNotifier struct{}

func (nopNotifier) BookingConfirmed(models.TicketInfo)               {}
func (nopNotifier) BookingCancelled(models.TicketInfo, models.Money) {}
func (nopNotifier) JourneyReminder(models.TicketInfo, int)           {}

// now is the clock's current time in UTC, truncated to microseconds so
// values survive a round trip through Postgres unchanged.
func now(c clockwork.Clock) time.Time {
	return c.Now().UTC().Truncate(time.Microsecond)
}
