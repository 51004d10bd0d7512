package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tokoorder/internal/models"

	"github.com/google/uuid"
)

// MockOrderRepository is an in-memory implementation of OrderRepository.
// It stores clones so callers never share line slices with the store.
type MockOrderRepository struct {
	orders map[string]models.Order
	keys   map[string]string
	mu     sync.RWMutex
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]models.Order),
		keys:   make(map[string]string),
	}
}

// Save creates or version-checks and updates an order.
func (r *MockOrderRepository) Save(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if order.Version == 0 {
		if order.ID == "" {
			order.ID = uuid.NewString()
		}
		if _, exists := r.orders[order.ID]; exists {
			return fmt.Errorf("order %s: %w", order.ID, ErrConflict)
		}
		if order.IdempotencyKey != nil {
			if _, exists := r.keys[*order.IdempotencyKey]; exists {
				return fmt.Errorf("idempotency key %q: %w", *order.IdempotencyKey, ErrConflict)
			}
			r.keys[*order.IdempotencyKey] = order.ID
		}
		for i := range order.Lines {
			order.Lines[i].OrderID = order.ID
			order.Lines[i].Position = i
		}
		order.Version = 1
		order.CreatedAt = now
		order.UpdatedAt = now
		r.orders[order.ID] = order.Clone()
		return nil
	}

	stored, ok := r.orders[order.ID]
	if !ok || stored.Version != order.Version {
		return fmt.Errorf("order %s at version %d: %w", order.ID, order.Version, ErrConflict)
	}
	stored.Status = order.Status
	stored.Version++
	stored.UpdatedAt = now
	r.orders[order.ID] = stored

	order.Version = stored.Version
	order.UpdatedAt = now
	return nil
}

// FindByID returns an order by its ID.
func (r *MockOrderRepository) FindByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	cp := order.Clone()
	return &cp, nil
}

// FindByIdempotencyKey returns the order created with key.
func (r *MockOrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	r.mu.RLock()
	id, ok := r.keys[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("idempotency key %q: %w", key, ErrNotFound)
	}
	return r.FindByID(ctx, id)
}

// FindByUser lists a user's orders, newest first.
func (r *MockOrderRepository) FindByUser(_ context.Context, userID string, page Page) (OrderPage, error) {
	return r.list(func(o models.Order) bool { return o.UserID == userID }, page), nil
}

// FindByStatus lists orders in status, newest first.
func (r *MockOrderRepository) FindByStatus(_ context.Context, status models.OrderStatus, page Page) (OrderPage, error) {
	return r.list(func(o models.Order) bool { return o.Status == status }, page), nil
}

func (r *MockOrderRepository) list(match func(models.Order) bool, page Page) OrderPage {
	page = page.Normalize()

	r.mu.RLock()
	matched := make([]models.Order, 0)
	for _, order := range r.orders {
		if match(order) {
			matched = append(matched, order.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	result := OrderPage{Orders: []models.Order{}, Total: int64(len(matched)), Page: page.Number, Size: page.Size}
	start := page.offset()
	if start < 0 || start >= len(matched) {
		return result
	}
	end := start + page.Size
	if end > len(matched) {
		end = len(matched)
	}
	result.Orders = matched[start:end]
	return result
}
