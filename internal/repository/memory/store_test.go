package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"busticket/internal/models"
	"busticket/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSchedule(t *testing.T, s *Store, date time.Time, departure time.Duration) (*models.Schedule, []models.Seat) {
	t.Helper()
	ctx := context.Background()
	sch := &models.Schedule{
		RouteName:     "Nairobi - Mombasa",
		Origin:        "Nairobi",
		Destination:   "Mombasa",
		BusNumber:     "KBX 001",
		Date:          date,
		DepartureTime: departure,
		Fare:          models.NewMoney(150000, ""),
		IsActive:      true,
	}
	var seats []models.Seat
	err := s.WithinTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.Schedules.Create(ctx, sch); err != nil {
			return err
		}
		var err error
		seats, err = repos.Seats.CreateSeatMap(ctx, sch.ID, 2, 2)
		return err
	})
	require.NoError(t, err)
	return sch, seats
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, seats := seedSchedule(t, s, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), 8*time.Hour)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(repos *repository.Repositories) error {
		seat, err := repos.Seats.GetByIDForUpdate(ctx, seats[0].ID)
		require.NoError(t, err)
		require.NoError(t, seat.Book("ticket-1"))
		require.NoError(t, repos.Seats.Update(ctx, seat))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = s.View(ctx, func(repos *repository.Repositories) error {
		seat, err := repos.Seats.GetByID(ctx, seats[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.SeatAvailable, seat.Status)
		assert.Nil(t, seat.TicketID)
		return nil
	})
	require.NoError(t, err)
}

func TestInjectedFaultAbortsTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	sch, seats := seedSchedule(t, s, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), 8*time.Hour)

	s.InjectFault("tickets.create", errors.New("disk full"))
	err := s.WithinTx(ctx, func(repos *repository.Repositories) error {
		return repos.Tickets.Create(ctx, &models.Ticket{TicketNumber: "TKT-1", ScheduleID: sch.ID, SeatID: seats[0].ID})
	})
	require.Error(t, err)

	s.ClearFaults()
	err = s.WithinTx(ctx, func(repos *repository.Repositories) error {
		return repos.Tickets.Create(ctx, &models.Ticket{TicketNumber: "TKT-1", ScheduleID: sch.ID, SeatID: seats[0].ID})
	})
	require.NoError(t, err)
}

func TestTicketNumberUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	sch, seats := seedSchedule(t, s, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), 8*time.Hour)

	err := s.WithinTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.Tickets.Create(ctx, &models.Ticket{TicketNumber: "TKT-1", ScheduleID: sch.ID, SeatID: seats[0].ID}); err != nil {
			return err
		}
		return repos.Tickets.Create(ctx, &models.Ticket{TicketNumber: "TKT-1", ScheduleID: sch.ID, SeatID: seats[1].ID})
	})
	assert.ErrorIs(t, err, repository.ErrDuplicateTicketNumber)
}

func TestSeatMapLayout(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	sch, _ := seedSchedule(t, s, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), 8*time.Hour)

	err := s.View(ctx, func(repos *repository.Repositories) error {
		seats, err := repos.Seats.ListBySchedule(ctx, sch.ID)
		require.NoError(t, err)
		require.Len(t, seats, 4)
		labels := []string{seats[0].SeatNumber, seats[1].SeatNumber, seats[2].SeatNumber, seats[3].SeatNumber}
		assert.Equal(t, []string{"A1", "A2", "B1", "B2"}, labels)
		return nil
	})
	require.NoError(t, err)
}

func TestListDepartingBetween(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	sch, seats := seedSchedule(t, s, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), 8*time.Hour)

	err := s.WithinTx(ctx, func(repos *repository.Repositories) error {
		p := &models.Passenger{Name: "Amina", Phone: "254712345678"}
		if err := repos.Passengers.Upsert(ctx, p); err != nil {
			return err
		}
		if err := repos.Tickets.Create(ctx, &models.Ticket{TicketNumber: "TKT-A", ScheduleID: sch.ID, PassengerID: p.ID, SeatID: seats[0].ID}); err != nil {
			return err
		}
		cancelled := &models.Ticket{TicketNumber: "TKT-B", ScheduleID: sch.ID, PassengerID: p.ID, SeatID: seats[1].ID, IsCancelled: true}
		return repos.Tickets.Create(ctx, cancelled)
	})
	require.NoError(t, err)

	departs := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	err = s.View(ctx, func(repos *repository.Repositories) error {
		got, err := repos.Tickets.ListDepartingBetween(ctx, departs.Add(-time.Minute), departs.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "TKT-A", got[0].Ticket.TicketNumber)
		assert.Equal(t, "Amina", got[0].Passenger.Name)
		assert.Equal(t, "A1", got[0].Seat.SeatNumber)

		got, err = repos.Tickets.ListDepartingBetween(ctx, departs.Add(time.Second), departs.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, got)
		return nil
	})
	require.NoError(t, err)
}

func TestPassengerUpsertMergesByPhone(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	email := "amina@example.com"
	age := 31

	var first, second models.Passenger
	err := s.WithinTx(ctx, func(repos *repository.Repositories) error {
		first = models.Passenger{Name: "Amina", Phone: "254712345678", Email: &email, Age: &age}
		if err := repos.Passengers.Upsert(ctx, &first); err != nil {
			return err
		}
		second = models.Passenger{Name: "Amina Otieno", Phone: "254712345678"}
		return repos.Passengers.Upsert(ctx, &second)
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Amina Otieno", second.Name)
	require.NotNil(t, second.Email)
	assert.Equal(t, email, *second.Email)
	require.NotNil(t, second.Age)
	assert.Equal(t, 31, *second.Age)
	assert.Len(t, s.st.passengers, 1)
}
