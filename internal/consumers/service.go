package consumers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"busticket/internal/config"
	"busticket/internal/messaging"
	"busticket/internal/metrics"
	"busticket/internal/models"
	"busticket/internal/search"

	"github.com/nats-io/stan.go"
)

const queueGroup = "ticket-indexer"

type ConsumerService struct {
	nats     *messaging.NATSClient
	handlers *Handlers
	subs     []stan.Subscription
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	if !cfg.Elasticsearch.Enabled {
		return nil, errors.New("consumers need Elasticsearch: set ELASTICSEARCH_ENABLED=true")
	}

	es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
	if err != nil {
		return nil, err
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		return nil, err
	}

	return &ConsumerService{
		nats:     natsClient,
		handlers: NewHandlers(es, cfg.Elasticsearch.Timeout),
	}, nil
}

// routes maps each subscribed subject to its handler.
func (cs *ConsumerService) routes() map[string]func([]byte) error {
	return map[string]func([]byte) error{
		models.EventTicketBooked:    cs.handlers.HandleTicketBooked,
		models.EventTicketConfirmed: cs.handlers.HandleTicketConfirmed,
		models.EventTicketCancelled: cs.handlers.HandleTicketCancelled,
		models.EventPaymentFailed:   cs.handlers.HandlePaymentFailed,
		models.EventPaymentRefunded: cs.handlers.HandlePaymentRefunded,
	}
}

func (cs *ConsumerService) Start() error {
	slog.Info("Starting NATS consumers...")

	for subject, handle := range cs.routes() {
		sub, err := cs.nats.SubscribeQueue(subject, queueGroup, func(m *stan.Msg) {
			if process(subject, handle, m.Data) {
				if err := m.Ack(); err != nil {
					slog.Error("Failed to ack message", "subject", subject, "sequence", m.Sequence, "error", err)
				}
			}
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		cs.subs = append(cs.subs, sub)
	}

	slog.Info("All consumers started successfully", "subscriptions", len(cs.subs))
	return nil
}

// process runs handle and reports whether the message should be acked.
// Transient failures are left unacked so NATS redelivers after AckWait;
// malformed messages are acked and dropped.
func process(subject string, handle func([]byte) error, data []byte) bool {
	err := handle(data)
	switch {
	case err == nil:
		metrics.EventsConsumedTotal.WithLabelValues(subject, metrics.OutcomeSuccess).Inc()
		return true
	case errors.Is(err, ErrMalformedEvent):
		metrics.EventsConsumedTotal.WithLabelValues(subject, metrics.OutcomeDropped).Inc()
		slog.Error("Dropping malformed event", "subject", subject, "error", err)
		return true
	default:
		metrics.EventsConsumedTotal.WithLabelValues(subject, metrics.OutcomeError).Inc()
		slog.Error("Failed to handle event, will be redelivered", "subject", subject, "error", err)
		return false
	}
}

func (cs *ConsumerService) Shutdown(_ context.Context) error {
	slog.Info("Shutting down consumer service...")

	// Close, not Unsubscribe: durable subscriptions keep their position.
	for _, sub := range cs.subs {
		if err := sub.Close(); err != nil {
			slog.Error("Error closing subscription", "error", err)
		}
	}

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
			return err
		}
	}
	return nil
}
