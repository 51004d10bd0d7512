package models_test

import (
	"testing"
	"time"

	"tokoorder/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder_CalculateTotal(t *testing.T) {
	order := &models.Order{ID: "order-1"}
	order.AddLine(models.OrderLine{ProductID: "P1", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2})
	order.AddLine(models.OrderLine{ProductID: "P2", UnitPrice: decimal.RequireFromString("5.00"), Quantity: 1})

	order.CalculateTotal()

	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("25.00")), "got %s", order.TotalAmount)
	assert.Equal(t, 0, order.Lines[0].Position)
	assert.Equal(t, 1, order.Lines[1].Position)
	assert.Equal(t, "order-1", order.Lines[1].OrderID)
}

func TestOrder_Validate(t *testing.T) {
	empty := &models.Order{ID: "order-1"}
	assert.ErrorIs(t, empty.Validate(), models.ErrEmptyOrder)

	bad := &models.Order{ID: "order-2"}
	bad.AddLine(models.OrderLine{ProductID: "P1", UnitPrice: decimal.NewFromInt(1), Quantity: 0})
	assert.Error(t, bad.Validate())

	ok := &models.Order{ID: "order-3"}
	ok.AddLine(models.OrderLine{ProductID: "P1", UnitPrice: decimal.NewFromInt(1), Quantity: 1})
	assert.NoError(t, ok.Validate())
}

func TestOrder_CloneDoesNotAliasLines(t *testing.T) {
	key := "idem-1"
	order := models.Order{ID: "order-1", IdempotencyKey: &key}
	order.AddLine(models.OrderLine{ProductID: "P1", Quantity: 1})

	cp := order.Clone()
	cp.Lines[0].Quantity = 99
	*cp.IdempotencyKey = "changed"

	assert.Equal(t, 1, order.Lines[0].Quantity)
	assert.Equal(t, "idem-1", *order.IdempotencyKey)
}

func TestNewOrderEvent(t *testing.T) {
	order := models.Order{ID: "order-1", UserID: "U1", Status: models.StatusPending}
	order.AddLine(models.OrderLine{ProductID: "P1", ProductName: "Laptop", UnitPrice: decimal.NewFromInt(10), Quantity: 2})
	order.AddLine(models.OrderLine{ProductID: "P2", ProductName: "Mouse", UnitPrice: decimal.NewFromInt(5), Quantity: 1})
	order.CalculateTotal()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	event := models.NewOrderEvent(models.EventOrderCreated, order, at)

	require.Len(t, event.Lines, 2)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, models.EventOrderCreated, event.Kind)
	assert.Equal(t, "order-1", event.OrderID)
	assert.Equal(t, "U1", event.UserID)
	assert.Equal(t, models.StatusPending, event.Status)
	assert.Equal(t, "Laptop", event.Lines[0].ProductName)
	assert.True(t, event.TotalAmount.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, at, event.OccurredAt)
}

func TestEventKind_RoutingKey(t *testing.T) {
	assert.Equal(t, "order.created", models.EventOrderCreated.RoutingKey())
	assert.Equal(t, "order.status_updated", models.EventOrderStatusUpdated.RoutingKey())
	assert.Equal(t, "order.cancelled", models.EventOrderCancelled.RoutingKey())
}
