package handlers

import (
	"context"

	"tokoorder/internal/models"

	"github.com/gofiber/fiber/v2"
)

// StockChecker reports remote stock figures.
type StockChecker interface {
	Availability(ctx context.Context, productID string) models.RemoteStockView
}

// ProductHandler exposes read-only stock checks against the catalog service.
type ProductHandler struct {
	stock StockChecker
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(stock StockChecker) *ProductHandler {
	return &ProductHandler{stock: stock}
}

// RegisterRoutes registers the product routes with the Fiber app.
func (h *ProductHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/products/:id/availability", h.HandleAvailability)
}

// HandleAvailability returns the current stock figure for a product.
func (h *ProductHandler) HandleAvailability(c *fiber.Ctx) error {
	view := h.stock.Availability(c.UserContext(), c.Params("id"))
	if !view.Available {
		c.Set(fiber.HeaderRetryAfter, "1")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"message":   "Product service unavailable",
			"retryable": true,
		})
	}
	return c.JSON(view)
}
