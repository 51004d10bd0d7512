package handlers

import (
	"context"
	"errors"

	"tokoorder/internal/middleware"
	"tokoorder/internal/models"
	"tokoorder/internal/repositories"
	"tokoorder/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// HeaderIdempotencyKey lets clients retry order creation safely.
const HeaderIdempotencyKey = "Idempotency-Key"

// OrderManager is the order use-case surface the handler drives.
type OrderManager interface {
	CreateOrder(ctx context.Context, input services.CreateOrderInput) (*models.Order, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string, page repositories.Page) (repositories.OrderPage, error)
	ListByStatus(ctx context.Context, status models.OrderStatus, page repositories.Page) (repositories.OrderPage, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error)
	CancelOrder(ctx context.Context, id string) (*models.Order, error)
}

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service OrderManager
	logger  *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service OrderManager, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{service: service, logger: logger}
}

// RegisterRoutes registers the order routes with the Fiber app.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Get("/user/:userId", h.HandleListByUser)
	orderRoutes.Get("/status/:status", h.HandleListByStatus)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Put("/:id/status", h.HandleUpdateOrderStatus)
	orderRoutes.Delete("/:id", h.HandleCancelOrder)
}

type createOrderRequest struct {
	UserID          string                   `json:"user_id"`
	Items           []services.OrderItemInput `json:"items"`
	ShippingAddress models.ShippingAddress   `json:"shipping_address"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func pageFrom(c *fiber.Ctx) repositories.Page {
	return repositories.Page{Number: c.QueryInt("page", 0), Size: c.QueryInt("size", 0)}.Normalize()
}

// authenticatedUser returns the user id set by the JWT middleware, if any.
func authenticatedUser(c *fiber.Ctx) string {
	id, _ := c.Locals(middleware.LocalUserID).(string)
	return id
}

// HandleCreateOrder creates a new order.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if caller := authenticatedUser(c); caller != "" {
		if req.UserID == "" {
			req.UserID = caller
		} else if req.UserID != caller {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Orders can only be placed for the authenticated user",
			})
		}
	}

	order, err := h.service.CreateOrder(c.UserContext(), services.CreateOrderInput{
		UserID:          req.UserID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  c.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		return h.writeError(c, "Could not create order", err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.service.GetOrderByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.writeError(c, "Could not retrieve order", err)
	}
	return c.JSON(order)
}

// HandleListByUser lists a user's orders.
func (h *OrderHandler) HandleListByUser(c *fiber.Ctx) error {
	page, err := h.service.ListByUser(c.UserContext(), c.Params("userId"), pageFrom(c))
	if err != nil {
		return h.writeError(c, "Could not retrieve orders", err)
	}
	return c.JSON(page)
}

// HandleListByStatus lists orders in one status.
func (h *OrderHandler) HandleListByStatus(c *fiber.Ctx) error {
	status, err := models.ParseOrderStatus(c.Params("status"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Unknown order status",
			"error":   err.Error(),
		})
	}
	page, err := h.service.ListByStatus(c.UserContext(), status, pageFrom(c))
	if err != nil {
		return h.writeError(c, "Could not retrieve orders", err)
	}
	return c.JSON(page)
}

// HandleUpdateOrderStatus moves an order to a new status.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body for status update",
			"error":   err.Error(),
		})
	}
	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Unknown order status",
			"error":   err.Error(),
		})
	}

	order, err := h.service.UpdateOrderStatus(c.UserContext(), c.Params("id"), status)
	if err != nil {
		return h.writeError(c, "Could not update order status", err)
	}
	return c.JSON(order)
}

// HandleCancelOrder cancels an order and releases its stock.
func (h *OrderHandler) HandleCancelOrder(c *fiber.Ctx) error {
	if _, err := h.service.CancelOrder(c.UserContext(), c.Params("id")); err != nil {
		return h.writeError(c, "Could not cancel order", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidOrder):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrOrderNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrNonCancellable):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrInsufficientStock), errors.Is(err, services.ErrUserIneligible):
		return fiber.StatusUnprocessableEntity
	case services.IsRetryable(err):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *OrderHandler) writeError(c *fiber.Ctx, message string, err error) error {
	code := statusFor(err)
	fields := []zap.Field{
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", code),
		zap.Error(err),
	}
	if code >= fiber.StatusInternalServerError {
		h.logger.Warn(message, fields...)
	} else {
		h.logger.Debug(message, fields...)
	}

	body := fiber.Map{
		"message":   message,
		"error":     err.Error(),
		"retryable": services.IsRetryable(err),
	}
	if code == fiber.StatusServiceUnavailable {
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	return c.Status(code).JSON(body)
}
