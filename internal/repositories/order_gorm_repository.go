package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokoorder/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{db: db}
}

func withLines(db *gorm.DB) *gorm.DB {
	return db.Preload("Lines", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
	})
}

// Save creates or version-checks and updates an order.
func (r *GORMOrderRepository) Save(ctx context.Context, order *models.Order) error {
	if order.Version == 0 {
		return r.create(ctx, order)
	}

	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(map[string]interface{}{
			"status":     order.Status,
			"updated_at": now,
			"version":    order.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %s at version %d: %w", order.ID, order.Version, ErrConflict)
	}
	order.Version++
	order.UpdatedAt = now
	return nil
}

func (r *GORMOrderRepository) create(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
		order.Lines[i].Position = i
	}
	order.Version = 1
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		order.Version = 0
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("order %s: %w", order.ID, ErrConflict)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// FindByID retrieves an order with its lines.
func (r *GORMOrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := withLines(r.db.WithContext(ctx)).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return &order, nil
}

// FindByIdempotencyKey retrieves the order created with key.
func (r *GORMOrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	if err := withLines(r.db.WithContext(ctx)).First(&order, "idempotency_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("idempotency key %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order by idempotency key: %w", err)
	}
	return &order, nil
}

// FindByUser lists a user's orders, newest first.
func (r *GORMOrderRepository) FindByUser(ctx context.Context, userID string, page Page) (OrderPage, error) {
	return r.list(ctx, "user_id = ?", userID, page)
}

// FindByStatus lists orders in status, newest first.
func (r *GORMOrderRepository) FindByStatus(ctx context.Context, status models.OrderStatus, page Page) (OrderPage, error) {
	return r.list(ctx, "status = ?", status, page)
}

func (r *GORMOrderRepository) list(ctx context.Context, cond string, arg interface{}, page Page) (OrderPage, error) {
	page = page.Normalize()
	result := OrderPage{Orders: []models.Order{}, Page: page.Number, Size: page.Size}

	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Order{}).Where(cond, arg).Count(&result.Total).Error; err != nil {
		return OrderPage{}, fmt.Errorf("failed to count orders: %w", err)
	}
	if result.Total == 0 {
		return result, nil
	}
	err := withLines(db).
		Where(cond, arg).
		Order("created_at DESC").
		Order("id").
		Offset(page.offset()).
		Limit(page.Size).
		Find(&result.Orders).Error
	if err != nil {
		return OrderPage{}, fmt.Errorf("failed to list orders: %w", err)
	}
	return result, nil
}
