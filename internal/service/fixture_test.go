package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"busticket/internal/external"
	"busticket/internal/models"
	"busticket/internal/repository"
	"busticket/internal/repository/memory"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

const testPhone = "+254 712-345-678"

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

type sentReminder struct {
	ticketID string
	hours    int
}

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []models.TicketInfo
	cancelled []models.Money
	reminders []sentReminder
}

func (n *recordingNotifier) BookingConfirmed(info models.TicketInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, info)
}

func (n *recordingNotifier) BookingCancelled(_ models.TicketInfo, refund models.Money) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, refund)
}

func (n *recordingNotifier) JourneyReminder(info models.TicketInfo, hours int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, sentReminder{ticketID: info.TicketID, hours: hours})
}

func (n *recordingNotifier) Reminders() []sentReminder {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentReminder(nil), n.reminders...)
}

type fixture struct {
	store     *memory.Store
	clock     *clockwork.FakeClock
	gateway   *external.MockGateway
	publisher *recordingPublisher
	notifier  *recordingNotifier
	svc       *Services
	schedule  *models.Schedule
	seats     []models.Seat
}

type fixtureOption func(*Deps)

func withDeduper(d ReminderDeduper) fixtureOption {
	return func(deps *Deps) { deps.Deduper = d }
}

func withGateways(gws ...external.Gateway) fixtureOption {
	return func(deps *Deps) { deps.Gateways = external.NewRegistry(gws...) }
}

func withGatewayTimeout(d time.Duration) fixtureOption {
	return func(deps *Deps) { deps.GatewayTimeout = d }
}

// newFixture seeds one active schedule departing departsIn after testNow
// with a 2x2 seat map (A1, A2, B1, B2).
func newFixture(t *testing.T, departsIn time.Duration, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		store:     memory.NewStore(),
		clock:     clockwork.NewFakeClockAt(testNow),
		gateway:   external.NewMockGateway(external.MockConfig{Enabled: true}),
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
	}

	deps := Deps{
		Store:          f.store,
		Clock:          f.clock,
		Publisher:      f.publisher,
		Notifier:       f.notifier,
		Gateways:       external.NewRegistry(f.gateway),
		GatewayTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.svc = NewServices(deps)

	departs := testNow.Add(departsIn)
	day := time.Date(departs.Year(), departs.Month(), departs.Day(), 0, 0, 0, 0, time.UTC)
	f.schedule = &models.Schedule{
		RouteName:      "Nairobi - Mombasa",
		Origin:         "Nairobi",
		Destination:    "Mombasa",
		BusNumber:      "KBX 001",
		BusType:        "AC Sleeper",
		Date:           day,
		DepartureTime:  departs.Sub(day),
		Fare:           models.NewMoney(150000, "KES"),
		BoardingPoints: []string{"Nairobi CBD", "Westlands"},
		DroppingPoints: []string{"Mombasa Town"},
		IsActive:       true,
	}

	ctx := context.Background()
	err := f.store.WithinTx(ctx, func(repos *repository.Repositories) error {
		return repos.Schedules.Create(ctx, f.schedule)
	})
	require.NoError(t, err)

	f.seats, err = f.svc.Seats.GenerateSeatMap(ctx, f.schedule.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, f.seats, 4)
	return f
}

func (f *fixture) seat(t *testing.T, label string) models.Seat {
	t.Helper()
	for _, s := range f.seats {
		if s.SeatNumber == label {
			return s
		}
	}
	t.Fatalf("seat %s not in fixture", label)
	return models.Seat{}
}

func (f *fixture) bookRequest(seatID string) *models.BookSeatRequest {
	return &models.BookSeatRequest{
		ScheduleID:    f.schedule.ID,
		SeatID:        seatID,
		PassengerName: "Amina Otieno",
		Phone:         testPhone,
		BoardingPoint: "Nairobi CBD",
		DroppingPoint: "Mombasa Town",
	}
}

func (f *fixture) book(t *testing.T, label string) *models.TicketDetails {
	t.Helper()
	d, err := f.svc.Bookings.BookSeat(context.Background(), f.bookRequest(f.seat(t, label).ID))
	require.NoError(t, err)
	return d
}

func (f *fixture) pay(t *testing.T, d *models.TicketDetails) *models.PaymentResult {
	t.Helper()
	res, err := f.svc.Payments.ProcessPayment(context.Background(), &models.ProcessPaymentRequest{
		TicketID: d.Ticket.ID,
		Amount:   d.Ticket.Fare.Amount,
		Method:   string(models.MethodCard),
		Gateway:  string(models.GatewayMock),
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) seatStatus(t *testing.T, seatID string) models.SeatStatus {
	t.Helper()
	var status models.SeatStatus
	err := f.store.View(context.Background(), func(repos *repository.Repositories) error {
		s, err := repos.Seats.GetByID(context.Background(), seatID)
		if err != nil {
			return err
		}
		require.NotNil(t, s)
		status = s.Status
		return nil
	})
	require.NoError(t, err)
	return status
}

func (f *fixture) ticket(t *testing.T, number string) *models.TicketDetails {
	t.Helper()
	d, err := f.svc.Bookings.GetTicket(context.Background(), number)
	require.NoError(t, err)
	return d
}
