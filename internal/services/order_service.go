package services

import (
	"context"
	"errors"
	"fmt"

	"tokoorder/internal/metrics"
	"tokoorder/internal/models"
	"tokoorder/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OrderItemInput is one requested product.
type OrderItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// CreateOrderInput is the request to place an order.
type CreateOrderInput struct {
	UserID          string                 `json:"user_id" validate:"required"`
	Items           []OrderItemInput       `json:"items" validate:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	IdempotencyKey  string                 `json:"-" validate:"omitempty,max=100"`
}

// OrderService orchestrates order placement, status changes and cancellation across the
// identity service, the catalog service, the order store and the event bus.
type OrderService struct {
	orderRepo repositories.OrderRepository
	identity  *IdentityVerifier
	inventory *InventoryCoordinator
	events    *EventPublisher
	validate  *validator.Validate
	logger    *zap.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// NewOrderService creates a new OrderService.
func NewOrderService(
	orderRepo repositories.OrderRepository,
	identity *IdentityVerifier,
	inventory *InventoryCoordinator,
	events *EventPublisher,
	logger *zap.Logger,
	m *metrics.Metrics,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		orderRepo: orderRepo,
		identity:  identity,
		inventory: inventory,
		events:    events,
		validate:  validator.New(),
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("tokoorder/services"),
	}
}

func (s *OrderService) finish(span trace.Span, operation string, err error) {
	result := "ok"
	if err != nil {
		result = outcomeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	s.metrics.OrderOperation(operation, result)
	span.End()
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidOrder):
		return "invalid"
	case errors.Is(err, ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNonCancellable):
		return "invalid_transition"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrUserIneligible):
		return "user_ineligible"
	case IsRetryable(err):
		return "unavailable"
	default:
		return "error"
	}
}

// CreateOrder verifies the user, reserves stock line by line, stores the order as PENDING
// and publishes ORDER_CREATED. Any failure after a reservation releases what was reserved.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (order *models.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer func() { s.finish(span, "create", err) }()
	span.SetAttributes(attribute.String("order.user_id", input.UserID), attribute.Int("order.items", len(input.Items)))

	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	if input.IdempotencyKey != "" {
		existing, err := s.orderRepo.FindByIdempotencyKey(ctx, input.IdempotencyKey)
		switch {
		case err == nil:
			s.logger.Info("replaying order for idempotency key",
				zap.String("order_id", existing.ID),
				zap.String("idempotency_key", input.IdempotencyKey),
			)
			return existing, nil
		case !errors.Is(err, repositories.ErrNotFound):
			return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
	}

	user := s.identity.VerifyUser(ctx, input.UserID)
	if !user.Available {
		return nil, fmt.Errorf("%w: cannot verify user %s", ErrUpstreamUnavailable, input.UserID)
	}
	if !user.Eligible {
		return nil, fmt.Errorf("%w: %s", ErrUserIneligible, input.UserID)
	}

	newOrder := &models.Order{
		ID:              uuid.NewString(),
		UserID:          input.UserID,
		Status:          models.StatusPending,
		ShippingAddress: input.ShippingAddress,
	}
	if input.IdempotencyKey != "" {
		key := input.IdempotencyKey
		newOrder.IdempotencyKey = &key
	}

	reserved := make([]Reservation, 0, len(input.Items))
	for _, item := range input.Items {
		r := s.inventory.CheckAndReserve(ctx, item.ProductID, item.Quantity)
		if !r.Reserved {
			s.compensate(ctx, newOrder.ID, reserved)
			return nil, reservationError(item, r)
		}
		reserved = append(reserved, r)
		newOrder.AddLine(models.OrderLine{
			ProductID:   item.ProductID,
			ProductName: r.Product.Name,
			UnitPrice:   r.Product.Price,
			Quantity:    item.Quantity,
		})
	}
	newOrder.CalculateTotal()

	if err := newOrder.Validate(); err != nil {
		s.compensate(ctx, newOrder.ID, reserved)
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	if err := s.orderRepo.Save(ctx, newOrder); err != nil {
		s.compensate(ctx, newOrder.ID, reserved)
		if newOrder.IdempotencyKey != nil && errors.Is(err, repositories.ErrConflict) {
			if existing, findErr := s.orderRepo.FindByIdempotencyKey(ctx, *newOrder.IdempotencyKey); findErr == nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	s.logger.Info("order created",
		zap.String("order_id", newOrder.ID),
		zap.String("user_id", newOrder.UserID),
		zap.String("total_amount", newOrder.TotalAmount.StringFixed(2)),
		zap.Int("lines", len(newOrder.Lines)),
	)
	span.SetAttributes(attribute.String("order.id", newOrder.ID))
	s.events.Publish(ctx, models.EventOrderCreated, *newOrder)
	return newOrder, nil
}

func reservationError(item OrderItemInput, r Reservation) error {
	switch {
	case !r.Product.Available:
		return fmt.Errorf("%w: cannot fetch product %s", ErrProductUnavailable, item.ProductID)
	case r.Rejected:
		return fmt.Errorf("%w: product %s, requested %d", ErrInsufficientStock, item.ProductID, item.Quantity)
	default:
		return fmt.Errorf("%w: cannot reserve product %s", ErrProductUnavailable, item.ProductID)
	}
}

// compensate releases every reservation independently; a failed release does not stop the rest.
func (s *OrderService) compensate(ctx context.Context, orderID string, reserved []Reservation) {
	for _, r := range reserved {
		if !s.inventory.Release(ctx, r.Product.ProductID, r.Quantity) {
			s.logger.Error("compensation incomplete, stock left reserved",
				zap.String("order_id", orderID),
				zap.String("product_id", r.Product.ProductID),
				zap.Int("quantity", r.Quantity),
			)
		}
	}
}

func (s *OrderService) load(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return order, nil
}

// GetOrderByID retrieves a single order by its ID.
func (s *OrderService) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	return s.load(ctx, id)
}

// ListByUser returns a page of the user's orders, newest first.
func (s *OrderService) ListByUser(ctx context.Context, userID string, page repositories.Page) (repositories.OrderPage, error) {
	result, err := s.orderRepo.FindByUser(ctx, userID, page)
	if err != nil {
		return repositories.OrderPage{}, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return result, nil
}

// ListByStatus returns a page of orders in status, newest first.
func (s *OrderService) ListByStatus(ctx context.Context, status models.OrderStatus, page repositories.Page) (repositories.OrderPage, error) {
	if !status.Valid() {
		return repositories.OrderPage{}, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, status)
	}
	result, err := s.orderRepo.FindByStatus(ctx, status, page)
	if err != nil {
		return repositories.OrderPage{}, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return result, nil
}

// UpdateOrderStatus moves an order along its lifecycle and publishes ORDER_STATUS_UPDATED.
// A legal move to CANCELLED is handled by CancelOrder so that stock is released.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (order *models.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateOrderStatus",
		trace.WithAttributes(attribute.String("order.id", id), attribute.String("order.status", string(status))))
	defer func() { s.finish(span, "update_status", err) }()

	order, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	previous := order.Status
	if !models.CanTransition(previous, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, previous, status)
	}
	if status == models.StatusCancelled {
		return s.CancelOrder(ctx, id)
	}

	if err := order.TransitionTo(status); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	if err := s.orderRepo.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	s.logger.Info("order status updated",
		zap.String("order_id", order.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(order.Status)),
	)
	s.events.Publish(ctx, models.EventOrderStatusUpdated, *order)
	return order, nil
}

// CancelOrder cancels a PENDING, CONFIRMED or PROCESSING order, releases its stock and
// publishes ORDER_CANCELLED. Cancelling an already cancelled order is a no-op.
//
// The CANCELLED status is stored before any release, and the store's version check lets only
// one of several concurrent cancellations through, so stock is released at most once.
func (s *OrderService) CancelOrder(ctx context.Context, id string) (order *models.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CancelOrder", trace.WithAttributes(attribute.String("order.id", id)))
	defer func() { s.finish(span, "cancel", err) }()

	order, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == models.StatusCancelled {
		return order, nil
	}
	if !order.Status.Cancellable() {
		return nil, fmt.Errorf("%w: order %s is %s", ErrNonCancellable, id, order.Status)
	}

	previous := order.Status
	if err := order.TransitionTo(models.StatusCancelled); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	if err := s.orderRepo.Save(ctx, order); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			if current, loadErr := s.load(ctx, id); loadErr == nil && current.Status == models.StatusCancelled {
				return current, nil
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	for _, line := range order.Lines {
		if !s.inventory.Release(ctx, line.ProductID, line.Quantity) {
			s.logger.Error("stock not released for cancelled order",
				zap.String("order_id", order.ID),
				zap.String("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
			)
		}
	}

	s.logger.Info("order cancelled",
		zap.String("order_id", order.ID),
		zap.String("from", string(previous)),
	)
	s.events.Publish(ctx, models.EventOrderCancelled, *order)
	return order, nil
}
