package handlers

import (
	"encoding/json"
	"fmt"

	"tokoorder/internal/models"

	amqp "github.com/streadway/amqp"
	"go.uber.org/zap"
)

// NewOrderEventAuditor returns a delivery handler that decodes order events and writes one
// audit log line per event. Undecodable messages are reported as errors.
func NewOrderEventAuditor(logger *zap.Logger) func(msg amqp.Delivery) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(msg amqp.Delivery) error {
		var event models.DomainEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			return fmt.Errorf("failed to decode order event: %w", err)
		}
		if event.EventID == "" || event.OrderID == "" {
			return fmt.Errorf("order event is missing identifiers")
		}
		logger.Info("order event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", string(event.Kind)),
			zap.String("routing_key", msg.RoutingKey),
			zap.String("order_id", event.OrderID),
			zap.String("user_id", event.UserID),
			zap.String("order_status", string(event.Status)),
			zap.String("total_amount", event.TotalAmount.StringFixed(2)),
			zap.Int("lines", len(event.Lines)),
			zap.Time("event_time", event.OccurredAt),
		)
		return nil
	}
}
