package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"busticket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusUpdate struct {
	ticketID string
	status   string
}

type fakeIndexer struct {
	mu      sync.Mutex
	docs    []*models.TicketDocument
	updates []statusUpdate
	err     error
}

func (f *fakeIndexer) IndexTicket(_ context.Context, doc *models.TicketDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeIndexer) UpdateTicketStatus(_ context.Context, ticketID, status string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, statusUpdate{ticketID: ticketID, status: status})
	return nil
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandleTicketBookedIndexesDocument(t *testing.T) {
	idx := &fakeIndexer{}
	h := NewHandlers(idx, time.Second)

	event := models.TicketBookedEvent{
		Ticket: models.TicketInfo{
			TicketID:      "t-1",
			TicketNumber:  "TKT-1",
			ScheduleID:    "s-1",
			PassengerName: "Amina Otieno",
			Fare:          models.NewMoney(150000, "KES"),
		},
		SeatID:    "seat-1",
		Timestamp: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, h.HandleTicketBooked(mustJSON(t, event)))

	require.Len(t, idx.docs, 1)
	doc := idx.docs[0]
	assert.Equal(t, "t-1", doc.TicketID)
	assert.Equal(t, "s-1", doc.ScheduleID)
	assert.Equal(t, models.TicketStatusBooked, doc.Status)
	assert.Equal(t, "KES", doc.Currency)
}

func TestHandleStatusEvents(t *testing.T) {
	idx := &fakeIndexer{}
	h := NewHandlers(idx, time.Second)

	require.NoError(t, h.HandleTicketConfirmed(mustJSON(t, models.TicketConfirmedEvent{TicketID: "t-1", PaymentID: "p-1"})))
	require.NoError(t, h.HandleTicketCancelled(mustJSON(t, models.TicketCancelledEvent{TicketID: "t-1"})))

	assert.Equal(t, []statusUpdate{
		{ticketID: "t-1", status: models.TicketStatusConfirmed},
		{ticketID: "t-1", status: models.TicketStatusCancelled},
	}, idx.updates)
}

func TestHandlersRejectMalformedEvents(t *testing.T) {
	h := NewHandlers(&fakeIndexer{}, time.Second)

	assert.ErrorIs(t, h.HandleTicketBooked([]byte("{not json")), ErrMalformedEvent)
	assert.ErrorIs(t, h.HandleTicketBooked([]byte(`{"ticket":{}}`)), ErrMalformedEvent)
	assert.ErrorIs(t, h.HandleTicketConfirmed([]byte(`{}`)), ErrMalformedEvent)
	assert.ErrorIs(t, h.HandlePaymentRefunded([]byte(`[]`)), ErrMalformedEvent)
}

func TestProcessAckDecision(t *testing.T) {
	transient := errors.New("es unavailable")
	h := NewHandlers(&fakeIndexer{err: transient}, time.Second)
	data := mustJSON(t, models.TicketCancelledEvent{TicketID: "t-1"})

	assert.False(t, process(models.EventTicketCancelled, h.HandleTicketCancelled, data), "transient failures are redelivered")
	assert.True(t, process(models.EventTicketCancelled, h.HandleTicketCancelled, []byte("garbage")), "malformed events are dropped")

	ok := NewHandlers(&fakeIndexer{}, time.Second)
	assert.True(t, process(models.EventTicketCancelled, ok.HandleTicketCancelled, data))
	assert.True(t, process(models.EventPaymentFailed, ok.HandlePaymentFailed, mustJSON(t, models.PaymentFailedEvent{PaymentID: "p-1"})))
}
