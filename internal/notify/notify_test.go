package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"busticket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type recordingChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []Notification
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return c.err
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func sampleTicket() models.TicketInfo {
	return models.TicketInfo{
		TicketID:        "t-1",
		TicketNumber:    "TKT-20260110080000-ABC123",
		PassengerName:   "Amina",
		Phone:           "254712345678",
		Email:           "amina@example.com",
		RouteName:       "Nairobi - Mombasa",
		Origin:          "Nairobi",
		Destination:     "Mombasa",
		BusNumber:       "KBX 001",
		SeatNumber:      "A1",
		BoardingPoint:   "Nairobi CBD",
		DroppingPoint:   "Mombasa Town",
		JourneyDateTime: time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC),
		Fare:            models.NewMoney(150000, "KES"),
	}
}

func TestDispatcherFansOutToEveryChannel(t *testing.T) {
	email := &recordingChannel{name: "email"}
	sms := &recordingChannel{name: "sms", err: errors.New("provider down")}
	d := NewDispatcher(Config{Workers: 2, QueueSize: 10}, email, sms)
	d.Start(context.Background())

	d.BookingConfirmed(sampleTicket())
	d.JourneyReminder(sampleTicket(), 24)
	d.Stop()

	assert.Equal(t, 2, email.count())
	assert.Equal(t, 2, sms.count())
}

func TestDispatcherDropsWhenQueueIsFull(t *testing.T) {
	d := NewDispatcher(Config{Workers: 1, QueueSize: 1})

	n, err := Render(KindBookingConfirmed, sampleTicket(), models.Money{}, 0)
	require.NoError(t, err)

	assert.True(t, d.Enqueue(n))
	assert.False(t, d.Enqueue(n))
}

func TestDispatcherRejectsAfterStop(t *testing.T) {
	ch := &recordingChannel{name: "sms"}
	d := NewDispatcher(Config{Workers: 1, QueueSize: 4}, ch)
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	d.BookingCancelled(sampleTicket(), models.NewMoney(75000, "KES"))
	assert.Equal(t, 0, ch.count())
}

func TestRenderTemplates(t *testing.T) {
	info := sampleTicket()

	n, err := Render(KindBookingConfirmed, info, models.Money{}, 0)
	require.NoError(t, err)
	assert.Contains(t, n.Subject, info.TicketNumber)
	assert.Contains(t, n.HTML, "A1")
	assert.Contains(t, n.HTML, "1500.00 KES")
	assert.Contains(t, n.Text, "10 Jan 2026 08:00 UTC")

	n, err = Render(KindBookingCancelled, info, models.NewMoney(75000, "KES"), 0)
	require.NoError(t, err)
	assert.Contains(t, n.Text, "750.00 KES")

	n, err = Render(KindJourneyReminder, info, models.Money{}, 1)
	require.NoError(t, err)
	assert.Contains(t, n.Subject, "1 hour(s)")
	assert.Contains(t, n.Text, "departs in 1h")

	_, err = Render(Kind("unknown"), info, models.Money{}, 0)
	assert.Error(t, err)
}

type fakeMailer struct {
	sent []*gomail.Message
}

func (f *fakeMailer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return nil
}

func TestEmailChannel(t *testing.T) {
	mailer := &fakeMailer{}
	ch := &EmailChannel{from: "tickets@busticket.local", sender: mailer}

	n, err := Render(KindBookingConfirmed, sampleTicket(), models.Money{}, 0)
	require.NoError(t, err)
	require.NoError(t, ch.Send(context.Background(), n))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"amina@example.com"}, mailer.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"tickets@busticket.local"}, mailer.sent[0].GetHeader("From"))

	n.Ticket.Email = ""
	assert.ErrorIs(t, ch.Send(context.Background(), n), ErrNoRecipient)
	assert.Len(t, mailer.sent, 1)
}

type fakeSMS struct {
	phone, message string
}

func (f *fakeSMS) Send(_ context.Context, phone, message string) (string, error) {
	f.phone, f.message = phone, message
	return "m-1", nil
}

func TestSMSChannel(t *testing.T) {
	sender := &fakeSMS{}
	ch := &SMSChannel{client: sender}

	n, err := Render(KindJourneyReminder, sampleTicket(), models.Money{}, 24)
	require.NoError(t, err)
	require.NoError(t, ch.Send(context.Background(), n))
	assert.Equal(t, "254712345678", sender.phone)
	assert.Equal(t, n.Text, sender.message)
}
