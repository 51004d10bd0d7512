package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tokoorder/internal/metrics"
	"tokoorder/internal/models"

	"go.uber.org/zap"
)

const defaultPublishTimeout = 5 * time.Second

// Bus delivers an encoded event. routingKey is the event kind ("order.created") and key is the
// order id.
type Bus interface {
	Publish(ctx context.Context, routingKey, key string, body []byte) error
}

// EventPublisher emits domain events without blocking the caller. Delivery is at most once:
// failures are logged and counted, never retried or returned.
type EventPublisher struct {
	bus     Bus
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewEventPublisher creates an EventPublisher. A nil bus drops every event with a log line.
func NewEventPublisher(bus Bus, logger *zap.Logger, m *metrics.Metrics) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{
		bus:     bus,
		timeout: defaultPublishTimeout,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Publish snapshots order into an event of the given kind and sends it in the background.
func (p *EventPublisher) Publish(ctx context.Context, kind models.EventKind, order models.Order) {
	event := models.NewOrderEvent(kind, order.Clone(), p.now())
	if p.bus == nil {
		p.logger.Debug("no event bus configured, dropping event",
			zap.String("event_type", string(kind)),
			zap.String("order_id", order.ID),
		)
		return
	}

	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.send(ctx, event)
	}()
}

func (p *EventPublisher) send(ctx context.Context, event models.DomainEvent) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	fields := []zap.Field{
		zap.String("event_id", event.EventID),
		zap.String("event_type", string(event.Kind)),
		zap.String("order_id", event.OrderID),
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.metrics.EventPublished(string(event.Kind), false)
		p.logger.Error("failed to marshal event", append(fields, zap.Error(err))...)
		return
	}
	if err := p.bus.Publish(ctx, event.Kind.RoutingKey(), event.OrderID, body); err != nil {
		p.metrics.EventPublished(string(event.Kind), false)
		p.logger.Error("failed to publish event", append(fields, zap.Error(err))...)
		return
	}
	p.metrics.EventPublished(string(event.Kind), true)
	p.logger.Info("event published", fields...)
}

// Flush waits until every event handed to Publish has been attempted.
func (p *EventPublisher) Flush() {
	p.wg.Wait()
}
