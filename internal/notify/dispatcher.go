// Package notify delivers passenger notifications off the request path.
// Callers enqueue and return; a fixed worker pool fans each message out
// to every configured channel.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"busticket/internal/metrics"
	"busticket/internal/models"
)

const sendTimeout = 30 * time.Second

type Config struct {
	Workers   int
	QueueSize int
}

type Dispatcher struct {
	channels []Channel
	workers  int
	queue    chan Notification

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewDispatcher(cfg Config, channels ...Channel) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	return &Dispatcher{
		channels: channels,
		workers:  cfg.Workers,
		queue:    make(chan Notification, cfg.QueueSize),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	slog.Info("Notification dispatcher started", "workers", d.workers, "channels", len(d.channels))
}

// Stop refuses new messages, drains the queue and waits for the workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	if d.cancel != nil {
		d.cancel()
	}
	slog.Info("Notification dispatcher stopped")
}

func (d *Dispatcher) BookingConfirmed(info models.TicketInfo) {
	d.render(KindBookingConfirmed, info, models.Money{}, 0)
}

func (d *Dispatcher) BookingCancelled(info models.TicketInfo, refund models.Money) {
	d.render(KindBookingCancelled, info, refund, 0)
}

func (d *Dispatcher) JourneyReminder(info models.TicketInfo, hoursBefore int) {
	d.render(KindJourneyReminder, info, models.Money{}, hoursBefore)
}

func (d *Dispatcher) render(kind Kind, info models.TicketInfo, refund models.Money, hours int) {
	n, err := Render(kind, info, refund, hours)
	if err != nil {
		slog.Error("Failed to render notification", "kind", kind, "ticket_number", info.TicketNumber, "error", err)
		metrics.NotificationsTotal.WithLabelValues("all", metrics.OutcomeError).Inc()
		return
	}
	d.Enqueue(n)
}

// Enqueue never blocks. It reports false when the message was dropped.
func (d *Dispatcher) Enqueue(n Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		slog.Warn("Notification dropped, dispatcher stopped", "kind", n.Kind, "ticket_number", n.Ticket.TicketNumber)
		metrics.NotificationsTotal.WithLabelValues("all", metrics.OutcomeDropped).Inc()
		return false
	}

	select {
	case d.queue <- n:
		metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		slog.Warn("Notification queue full, message dropped", "kind", n.Kind, "ticket_number", n.Ticket.TicketNumber)
		metrics.NotificationsTotal.WithLabelValues("all", metrics.OutcomeDropped).Inc()
		return false
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for n := range d.queue {
		metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
		d.deliver(ctx, n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	for _, ch := range d.channels {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := ch.Send(sendCtx, n)
		cancel()

		switch {
		case err == nil:
			metrics.NotificationsTotal.WithLabelValues(ch.Name(), metrics.OutcomeSuccess).Inc()
			slog.Debug("Notification sent", "channel", ch.Name(), "kind", n.Kind, "ticket_number", n.Ticket.TicketNumber)
		case errors.Is(err, ErrNoRecipient):
			metrics.NotificationsTotal.WithLabelValues(ch.Name(), metrics.OutcomeSkipped).Inc()
		default:
			metrics.NotificationsTotal.WithLabelValues(ch.Name(), metrics.OutcomeError).Inc()
			slog.Error("Failed to send notification",
				"channel", ch.Name(), "kind", n.Kind, "ticket_number", n.Ticket.TicketNumber, "error", err)
		}
	}
}
