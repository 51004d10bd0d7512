package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind tags a DomainEvent.
type EventKind string

const (
	EventOrderCreated       EventKind = "ORDER_CREATED"
	EventOrderStatusUpdated EventKind = "ORDER_STATUS_UPDATED"
	EventOrderCancelled     EventKind = "ORDER_CANCELLED"
)

// RoutingKey maps ORDER_CREATED to order.created.
func (k EventKind) RoutingKey() string {
	return strings.ToLower(strings.Replace(string(k), "_", ".", 1))
}

// EventLine is a line item as carried by an event.
type EventLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// DomainEvent carries a full projection of the order so consumers never call back.
type DomainEvent struct {
	EventID         string          `json:"event_id"`
	Kind            EventKind       `json:"event_type"`
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          OrderStatus     `json:"order_status"`
	Lines           []EventLine     `json:"order_items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	OccurredAt      time.Time       `json:"event_time"`
}

// NewOrderEvent snapshots order into an event of the given kind.
func NewOrderEvent(kind EventKind, order Order, at time.Time) DomainEvent {
	lines := make([]EventLine, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, EventLine{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}
	return DomainEvent{
		EventID:         uuid.NewString(),
		Kind:            kind,
		OrderID:         order.ID,
		UserID:          order.UserID,
		TotalAmount:     order.TotalAmount,
		Status:          order.Status,
		Lines:           lines,
		ShippingAddress: order.ShippingAddress,
		OccurredAt:      at.UTC(),
	}
}
