package service

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "busticket/internal/errors"
	"busticket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateRefund(t *testing.T) {
	fare := models.NewMoney(150001, "KES")

	tests := []struct {
		hours   float64
		allowed bool
		pct     int
		amount  int64
	}{
		{hours: -5, allowed: false},
		{hours: 0, allowed: false},
		{hours: 1.99, allowed: false},
		{hours: 2, allowed: true, pct: 50, amount: 75000},
		{hours: 12, allowed: true, pct: 50, amount: 75000},
		{hours: 23.99, allowed: true, pct: 50, amount: 75000},
		{hours: 24, allowed: true, pct: 100, amount: 150001},
		{hours: 30, allowed: true, pct: 100, amount: 150001},
		{hours: 24 * 30, allowed: true, pct: 100, amount: 150001},
	}
	for _, tt := range tests {
		d := EvaluateRefund(fare, tt.hours)
		assert.Equal(t, tt.allowed, d.Allowed, "hours=%v", tt.hours)
		assert.Equal(t, tt.pct, d.Percentage, "hours=%v", tt.hours)
		assert.Equal(t, tt.amount, d.Amount.Amount, "hours=%v", tt.hours)
		assert.Equal(t, "KES", d.Amount.Currency)
		if !tt.allowed {
			assert.NotEmpty(t, d.Reason)
		}
	}
}

func TestEvaluateRefundIsMonotonicAndCapped(t *testing.T) {
	for _, amount := range []int64{0, 1, 99, 150000, 987654321} {
		fare := models.NewMoney(amount, "KES")
		prev := int64(-1)
		for h := -2.0; h <= 72; h += 0.25 {
			d := EvaluateRefund(fare, h)
			assert.GreaterOrEqual(t, d.Amount.Amount, prev, "fare=%d hours=%v", amount, h)
			assert.LessOrEqual(t, d.Amount.Amount, amount)
			assert.GreaterOrEqual(t, d.Amount.Amount, int64(0))
			prev = d.Amount.Amount
		}
	}
}

func TestCancelBookingReleasesSeat(t *testing.T) {
	f := newFixture(t, 10*time.Hour)
	d := f.book(t, "A2")

	res, err := f.svc.Cancellations.CancelBooking(context.Background(), &models.CancelBookingRequest{
		TicketNumber: d.Ticket.TicketNumber,
		Phone:        "254712345678",
		Reason:       "sick",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 50, res.RefundPercentage)
	assert.Equal(t, int64(75000), res.RefundAmount.Amount)
	assert.Equal(t, "pending", res.RefundStatus)
	require.NotNil(t, res.CancelledAt)

	stored := f.ticket(t, d.Ticket.TicketNumber)
	assert.True(t, stored.Ticket.IsCancelled)
	require.NotNil(t, stored.Ticket.CancellationReason)
	assert.Equal(t, "sick", *stored.Ticket.CancellationReason)
	assert.Equal(t, models.SeatAvailable, stored.Seat.Status)
	assert.Nil(t, stored.Seat.TicketID)

	assert.Equal(t, []models.Money{res.RefundAmount}, f.notifier.cancelled)
	assert.Contains(t, f.publisher.Subjects(), models.EventTicketCancelled)

	// the released seat can be booked again
	again := f.book(t, "A2")
	assert.NotEqual(t, d.Ticket.ID, again.Ticket.ID)
}

func TestCancelBookingSoftRejections(t *testing.T) {
	f := newFixture(t, 48*time.Hour)
	d := f.book(t, "A1")
	ctx := context.Background()

	res, err := f.svc.Cancellations.CancelBooking(ctx, &models.CancelBookingRequest{TicketNumber: "TKT-NOPE", Phone: testPhone})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "ticket not found", res.Message)

	res, err = f.svc.Cancellations.CancelBooking(ctx, &models.CancelBookingRequest{TicketNumber: d.Ticket.TicketNumber, Phone: "0799999999"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "phone")
	assert.False(t, f.ticket(t, d.Ticket.TicketNumber).Ticket.IsCancelled)

	res, err = f.svc.Cancellations.CancelBooking(ctx, &models.CancelBookingRequest{TicketNumber: d.Ticket.TicketNumber, Phone: testPhone})
	require.NoError(t, err)
	require.True(t, res.Success)
	cancelledAt := res.CancelledAt

	res, err = f.svc.Cancellations.CancelBooking(ctx, &models.CancelBookingRequest{TicketNumber: d.Ticket.TicketNumber, Phone: testPhone})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "ticket is already cancelled", res.Message)
	assert.Equal(t, cancelledAt, res.CancelledAt)
	assert.Len(t, f.notifier.cancelled, 1)
}

func TestCancelBookingAfterDeparture(t *testing.T) {
	f := newFixture(t, 3*time.Hour)
	d := f.book(t, "A1")

	f.clock.Advance(4 * time.Hour)
	res, err := f.svc.Cancellations.CancelBooking(context.Background(), &models.CancelBookingRequest{
		TicketNumber: d.Ticket.TicketNumber,
		Phone:        testPhone,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "cannot cancel after departure", res.Message)
	assert.Equal(t, models.SeatBooked, f.seatStatus(t, d.Seat.ID))
}

func TestCancelBookingIsAtomic(t *testing.T) {
	f := newFixture(t, 48*time.Hour)
	d := f.book(t, "A1")
	boom := errors.New("deadlock detected")
	f.store.InjectFault("seats.update", boom)

	_, err := f.svc.Cancellations.CancelBooking(context.Background(), &models.CancelBookingRequest{
		TicketNumber: d.Ticket.TicketNumber,
		Phone:        testPhone,
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))

	stored := f.ticket(t, d.Ticket.TicketNumber)
	assert.False(t, stored.Ticket.IsCancelled)
	assert.Equal(t, models.SeatBooked, stored.Seat.Status)
	assert.Empty(t, f.notifier.cancelled)
}

func TestHoursUntil(t *testing.T) {
	journey := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	assert.InDelta(t, 30.0, HoursUntil(journey, testNow), 1e-9)
	assert.InDelta(t, -1.5, HoursUntil(journey, journey.Add(90*time.Minute)), 1e-9)
}
