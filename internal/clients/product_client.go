package clients

import (
	"context"
	"errors"
	"net/url"
	"time"

	"tokoorder/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	stockIncrease = "INCREASE"
	stockDecrease = "DECREASE"
)

// stockUpdateRequest is the body of PUT /products/{id}/stock.
type stockUpdateRequest struct {
	Quantity  int    `json:"quantity"`
	Operation string `json:"operation"`
}

// ProductServiceClient talks to the catalog/inventory service.
type ProductServiceClient struct {
	baseClient
}

// NewProductServiceClient creates a client for the catalog service at baseURL.
func NewProductServiceClient(baseURL string, timeout time.Duration) *ProductServiceClient {
	return &ProductServiceClient{baseClient: newBaseClient(baseURL, timeout)}
}

func (c *ProductServiceClient) productURL(productID string) string {
	return c.baseURL + "/products/" + url.PathEscape(productID)
}

// GetProduct calls GET /products/{id}.
func (c *ProductServiceClient) GetProduct(ctx context.Context, productID string) (models.ProductView, error) {
	var view models.ProductView
	if err := c.send(ctx, fiber.Get(c.productURL(productID)), &view, nil); err != nil {
		return models.ProductView{}, err
	}
	return view, nil
}

// CheckStock calls GET /products/{id}/stock.
func (c *ProductServiceClient) CheckStock(ctx context.Context, productID string) (models.StockView, error) {
	var view models.StockView
	if err := c.send(ctx, fiber.Get(c.productURL(productID)+"/stock"), &view, nil); err != nil {
		return models.StockView{}, err
	}
	return view, nil
}

// AdjustStock applies a signed delta: negative reserves, positive releases.
// The catalog refuses a decrement that would drive stock below zero.
func (c *ProductServiceClient) AdjustStock(ctx context.Context, productID string, delta int) (models.StockView, error) {
	if delta == 0 {
		return models.StockView{}, errors.New("stock delta must not be zero")
	}
	req := stockUpdateRequest{Quantity: delta, Operation: stockIncrease}
	if delta < 0 {
		req = stockUpdateRequest{Quantity: -delta, Operation: stockDecrease}
	}

	var view models.StockView
	agent := fiber.Put(c.productURL(productID) + "/stock").JSON(req)
	if err := c.send(ctx, agent, &view, ErrStockRejected); err != nil {
		return models.StockView{}, err
	}
	return view, nil
}
