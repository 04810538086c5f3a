package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	apperrors "busticket/internal/errors"
	"busticket/internal/models"
	"busticket/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookSeatCreatesUnconfirmedTicket(t *testing.T) {
	f := newFixture(t, 48*time.Hour)
	a1 := f.seat(t, "A1")

	d := f.book(t, "A1")

	assert.Regexp(t, `^TKT-20260301080000-[A-Z0-9]{6}$`, d.Ticket.TicketNumber)
	assert.False(t, d.Ticket.IsConfirmed)
	assert.False(t, d.Ticket.IsCancelled)
	assert.Equal(t, f.schedule.Fare, d.Ticket.Fare)
	assert.Equal(t, models.SeatBooked, d.Seat.Status)
	assert.Equal(t, models.SeatBooked, f.seatStatus(t, a1.ID))
	assert.Equal(t, models.PhoneNumber("254712345678"), d.Passenger.Phone)

	stored := f.ticket(t, d.Ticket.TicketNumber)
	require.NotNil(t, stored.Seat.TicketID)
	assert.Equal(t, d.Ticket.ID, *stored.Seat.TicketID)

	assert.Len(t, f.notifier.confirmed, 1)
	assert.Equal(t, []string{models.EventTicketBooked}, f.publisher.Subjects())
}

func TestBookSeatRejectsTakenSeat(t *testing.T) {
	f := newFixture(t, 48*time.Hour)
	first := f.book(t, "A1")

	_, err := f.svc.Bookings.BookSeat(context.Background(), f.bookRequest(f.seat(t, "A1").ID))
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, apperrors.CodeSeatNotAvailable, apperrors.CodeOf(err))

	// the first booking is untouched
	stored := f.ticket(t, first.Ticket.TicketNumber)
	assert.False(t, stored.Ticket.IsCancelled)
	assert.Equal(t, models.SeatBooked, stored.Seat.Status)
}

func TestBookSeatConcurrentRequestsBookOnce(t *testing.T) {
	f := newFixture(t, 48*time.Hour)
	a1 := f.seat(t, "A1")

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := f.bookRequest(a1.ID)
			req.Phone = fmt.Sprintf("07000000%02d", i)
			_, errs[i] = f.svc.Bookings.BookSeat(context.Background(), req)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperrors.CodeSeatNotAvailable, apperrors.CodeOf(err))
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, models.SeatBooked, f.seatStatus(t, a1.ID))
}

func TestBookSeatIsAtomic(t *testing.T) {
	for _, op := range []string{"passengers.upsert", "tickets.create", "seats.update"} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t, 48*time.Hour)
			a1 := f.seat(t, "A1")
			boom := errors.New("disk full")
			f.store.InjectFault(op, boom)

			_, err := f.svc.Bookings.BookSeat(context.Background(), f.bookRequest(a1.ID))
			require.ErrorIs(t, err, boom)
			assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))

			assert.Equal(t, models.SeatAvailable, f.seatStatus(t, a1.ID))
			ctx := context.Background()
			err = f.store.View(ctx, func(repos *repository.Repositories) error {
				p, err := repos.Passengers.GetByPhone(ctx, "254712345678")
				require.NoError(t, err)
				assert.Nil(t, p)

				live, err := repos.Tickets.ListDepartingBetween(ctx, testNow, testNow.Add(72*time.Hour))
				require.NoError(t, err)
				assert.Empty(t, live)
				return nil
			})
			require.NoError(t, err)
			assert.Empty(t, f.notifier.confirmed)
			assert.Empty(t, f.publisher.Subjects())

			// the seat is still bookable once the fault clears
			f.store.ClearFaults()
			f.book(t, "A1")
		})
	}
}

func TestBookSeatValidation(t *testing.T) {
	f := newFixture(t, 48*time.Hour)
	a1 := f.seat(t, "A1")

	ctx := context.Background()
	other := &models.Schedule{
		RouteName: "Nairobi - Kisumu",
		Date:      f.schedule.Date,
		Fare:      models.NewMoney(90000, "KES"),
		IsActive:  true,
	}
	inactive := &models.Schedule{
		RouteName: "Nairobi - Nakuru",
		Date:      f.schedule.Date,
		Fare:      models.NewMoney(50000, "KES"),
	}
	var otherSeats []models.Seat
	err := f.store.WithinTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.Schedules.Create(ctx, other); err != nil {
			return err
		}
		if err := repos.Schedules.Create(ctx, inactive); err != nil {
			return err
		}
		var err error
		otherSeats, err = repos.Seats.CreateSeatMap(ctx, other.ID, 1, 1)
		return err
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(r *models.BookSeatRequest)
		kind   apperrors.Kind
		code   string
	}{
		{"missing name", func(r *models.BookSeatRequest) { r.PassengerName = "  " }, apperrors.KindValidation, apperrors.CodeInvalidRequest},
		{"bad phone", func(r *models.BookSeatRequest) { r.Phone = "12345" }, apperrors.KindValidation, apperrors.CodeInvalidPhone},
		{"unknown schedule", func(r *models.BookSeatRequest) { r.ScheduleID = "missing" }, apperrors.KindNotFound, apperrors.CodeScheduleNotFound},
		{"inactive schedule", func(r *models.BookSeatRequest) { r.ScheduleID = inactive.ID }, apperrors.KindBusinessRule, apperrors.CodeScheduleInactive},
		{"unknown boarding point", func(r *models.BookSeatRequest) { r.BoardingPoint = "Thika" }, apperrors.KindBusinessRule, apperrors.CodeInvalidPoint},
		{"unknown dropping point", func(r *models.BookSeatRequest) { r.DroppingPoint = "Malindi" }, apperrors.KindBusinessRule, apperrors.CodeInvalidPoint},
		{"unknown seat", func(r *models.BookSeatRequest) { r.SeatID = "missing" }, apperrors.KindNotFound, apperrors.CodeSeatNotFound},
		{"seat of another schedule", func(r *models.BookSeatRequest) { r.SeatID = otherSeats[0].ID }, apperrors.KindBusinessRule, apperrors.CodeSeatScheduleMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.bookRequest(a1.ID)
			tt.mutate(req)

			_, err := f.svc.Bookings.BookSeat(ctx, req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}

	assert.Equal(t, models.SeatAvailable, f.seatStatus(t, a1.ID))
	assert.Equal(t, models.SeatAvailable, f.seatStatus(t, otherSeats[0].ID))
}

func TestBookSeatReusesPassengerByPhone(t *testing.T) {
	f := newFixture(t, 48*time.Hour)
	ctx := context.Background()

	email := "amina@example.com"
	req := f.bookRequest(f.seat(t, "A1").ID)
	req.Email = &email
	first, err := f.svc.Bookings.BookSeat(ctx, req)
	require.NoError(t, err)

	req = f.bookRequest(f.seat(t, "A2").ID)
	req.PassengerName = "Amina W. Otieno"
	req.Phone = "+254712345678"
	second, err := f.svc.Bookings.BookSeat(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Passenger.ID, second.Passenger.ID)
	assert.Equal(t, "Amina W. Otieno", second.Passenger.Name)
	require.NotNil(t, second.Passenger.Email)
	assert.Equal(t, email, *second.Passenger.Email)
}

func TestBookSeatRetriesTicketNumberCollision(t *testing.T) {
	f := newFixture(t, 48*time.Hour)
	f.svc.Bookings.newTicketNumber = func(time.Time) (string, error) { return "TKT-TAKEN", nil }
	f.book(t, "A1")

	var calls int
	f.svc.Bookings.newTicketNumber = func(time.Time) (string, error) {
		calls++
		if calls < 3 {
			return "TKT-TAKEN", nil
		}
		return "TKT-FRESH", nil
	}
	d := f.book(t, "A2")
	assert.Equal(t, "TKT-FRESH", d.Ticket.TicketNumber)
	assert.Equal(t, 3, calls)
}

func TestBookSeatGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t, 48*time.Hour)
	f.svc.Bookings.newTicketNumber = func(time.Time) (string, error) { return "TKT-TAKEN", nil }
	f.book(t, "A1")

	a2 := f.seat(t, "A2")
	_, err := f.svc.Bookings.BookSeat(context.Background(), f.bookRequest(a2.ID))
	require.ErrorIs(t, err, repository.ErrDuplicateTicketNumber)
	assert.Equal(t, models.SeatAvailable, f.seatStatus(t, a2.ID))
}

func TestGetTicketNotFound(t *testing.T) {
	f := newFixture(t, 48*time.Hour)
	_, err := f.svc.Bookings.GetTicket(context.Background(), "TKT-NOPE")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGenerateTicketNumber(t *testing.T) {
	at := time.Date(2026, 7, 4, 15, 30, 5, 0, time.UTC)
	pattern := regexp.MustCompile(`^TKT-20260704153005-[A-Z0-9]{6}$`)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		n, err := GenerateTicketNumber(at)
		require.NoError(t, err)
		assert.Regexp(t, pattern, n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 45)
}
