package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"busticket/internal/cache"
	"busticket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDeduper struct{}

func (failingDeduper) MarkOnce(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestSendRemindersDayBefore(t *testing.T) {
	f := newFixture(t, 24*time.Hour+10*time.Minute)
	booked := f.book(t, "A1")
	cancelled := f.book(t, "A2")
	res, err := f.svc.Cancellations.CancelBooking(context.Background(), &models.CancelBookingRequest{
		TicketNumber: cancelled.Ticket.TicketNumber,
		Phone:        testPhone,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	sent, err := f.svc.Reminders.SendReminders(context.Background(), DayBeforeWindow)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []sentReminder{{ticketID: booked.Ticket.ID, hours: 24}}, f.notifier.Reminders())

	// nothing departs within the hour
	sent, err = f.svc.Reminders.SendReminders(context.Background(), HourBeforeWindow)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestSendRemindersWindowBounds(t *testing.T) {
	tests := []struct {
		name      string
		departsIn time.Duration
		window    ReminderWindow
		want      int
	}{
		{"24h lower edge", 24*time.Hour - 15*time.Minute, DayBeforeWindow, 1},
		{"24h upper edge excluded", 24*time.Hour + 15*time.Minute, DayBeforeWindow, 0},
		{"24h too early", 23 * time.Hour, DayBeforeWindow, 0},
		{"1h inside", time.Hour + 5*time.Minute, HourBeforeWindow, 1},
		{"1h lower edge excluded", 52 * time.Minute - time.Second, HourBeforeWindow, 0},
		{"1h upper edge excluded", 68 * time.Minute, HourBeforeWindow, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.departsIn)
			f.book(t, "B1")

			sent, err := f.svc.Reminders.SendReminders(context.Background(), tt.window)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sent)
		})
	}
}

func TestSendRemindersDeduplicates(t *testing.T) {
	f := newFixture(t, time.Hour, withDeduper(cache.NewLocalLocker()))
	f.book(t, "A1")

	sent, err := f.svc.Reminders.SendReminders(context.Background(), HourBeforeWindow)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	f.clock.Advance(5 * time.Minute)
	sent, err = f.svc.Reminders.SendReminders(context.Background(), HourBeforeWindow)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, f.notifier.Reminders(), 1)
}

func TestSendRemindersWithoutDeduperRepeats(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.book(t, "A1")

	for i := 0; i < 2; i++ {
		sent, err := f.svc.Reminders.SendReminders(context.Background(), HourBeforeWindow)
		require.NoError(t, err)
		assert.Equal(t, 1, sent)
	}
	assert.Len(t, f.notifier.Reminders(), 2)
}

func TestSendRemindersDeduperFailureStillSends(t *testing.T) {
	f := newFixture(t, time.Hour, withDeduper(failingDeduper{}))
	f.book(t, "A1")

	sent, err := f.svc.Reminders.SendReminders(context.Background(), HourBeforeWindow)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}
