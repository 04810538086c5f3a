package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"busticket/internal/logger"
	"busticket/internal/metrics"
	"busticket/internal/models"
	"busticket/internal/repository"

	"github.com/jonboulle/clockwork"
)

// ReminderWindow selects tickets whose journey starts within
// [now+Offset-Tolerance, now+Offset+Tolerance).
type ReminderWindow struct {
	Name      string
	Offset    time.Duration
	Tolerance time.Duration
}

var (
	DayBeforeWindow  = ReminderWindow{Name: "24h", Offset: 24 * time.Hour, Tolerance: 15 * time.Minute}
	HourBeforeWindow = ReminderWindow{Name: "1h", Offset: time.Hour, Tolerance: 8 * time.Minute}
)

func (w ReminderWindow) hours() int {
	return int(w.Offset / time.Hour)
}

type ReminderService struct {
	store    repository.Store
	clock    clockwork.Clock
	notifier Notifier
	deduper  ReminderDeduper
}

// NewReminderService builds the sweeper. deduper may be nil, in which case
// overlapping sweeps can remind the same ticket twice.
func NewReminderService(store repository.Store, clock clockwork.Clock, notifier Notifier, deduper ReminderDeduper) *ReminderService {
	return &ReminderService{store: store, clock: clock, notifier: notifier, deduper: deduper}
}

// SendReminders queues one reminder per live ticket departing inside the
// window and returns how many were queued.
func (s *ReminderService) SendReminders(ctx context.Context, w ReminderWindow) (int, error) {
	log := logger.WithContext(ctx)
	ts := now(s.clock)
	from := ts.Add(w.Offset - w.Tolerance)
	to := ts.Add(w.Offset + w.Tolerance)

	var tickets []models.TicketDetails
	err := s.store.View(ctx, func(repos *repository.Repositories) error {
		var err error
		tickets, err = repos.Tickets.ListDepartingBetween(ctx, from, to)
		if err != nil {
			return fmt.Errorf("failed to list departing tickets: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.RemindersTotal.WithLabelValues(w.Name, metrics.OutcomeError).Inc()
		return 0, err
	}

	sent := 0
	for i := range tickets {
		d := &tickets[i]
		if d.Ticket.IsCancelled {
			continue
		}

		if s.deduper != nil {
			key := "reminder:" + d.Ticket.ID + ":" + strconv.Itoa(w.hours())
			first, err := s.deduper.MarkOnce(ctx, key, 2*(w.Offset+w.Tolerance))
			if err != nil {
				// dedup is best effort; a Redis hiccup should not suppress reminders
				log.Warn("Reminder dedup failed", "error", err, "ticket_id", d.Ticket.ID)
			} else if !first {
				metrics.RemindersTotal.WithLabelValues(w.Name, metrics.OutcomeSkipped).Inc()
				continue
			}
		}

		s.notifier.JourneyReminder(d.Info(), w.hours())
		metrics.RemindersTotal.WithLabelValues(w.Name, metrics.OutcomeSuccess).Inc()
		sent++
	}

	log.Info("Reminder sweep finished",
		"window", w.Name, "candidates", len(tickets), "sent", sent,
		"from", from.Format(time.RFC3339), "to", to.Format(time.RFC3339))
	return sent, nil
}
