package repositories

import (
	"context"
	"errors"
	"math"

	"tokoorder/internal/models"
)

var (
	// ErrNotFound is returned when no order matches the lookup.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when a save loses an optimistic-lock race or hits a duplicate key.
	ErrConflict = errors.New("order was modified concurrently")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// maxPageNumber keeps Number*Size within an int32 offset.
	maxPageNumber   = math.MaxInt32 / maxPageSize
)

// Page selects a zero-based page of results.
type Page struct {
	Number int
	Size   int
}

// Normalize clamps the page into a usable range.
func (p Page) Normalize() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Number > maxPageNumber {
		p.Number = maxPageNumber
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

func (p Page) offset() int { return p.Number * p.Size }

// OrderPage is one page of orders, newest first.
type OrderPage struct {
	Orders []models.Order `json:"orders"`
	Total  int64          `json:"total"`
	Page   int            `json:"page"`
	Size   int            `json:"size"`
}

// OrderRepository defines the interface for order data access.
//
// Save inserts an order whose Version is zero and otherwise updates it only if the stored
// version still matches, bumping Version on success.
type OrderRepository interface {
	Save(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	FindByUser(ctx context.Context, userID string, page Page) (OrderPage, error)
	FindByStatus(ctx context.Context, status models.OrderStatus, page Page) (OrderPage, error)
}
