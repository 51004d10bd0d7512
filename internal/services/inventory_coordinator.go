package services

import (
	"context"

	"tokoorder/internal/metrics"
	"tokoorder/internal/models"
	"tokoorder/internal/resilience"

	"go.uber.org/zap"
)

// ProductCatalog is the catalog/inventory service as seen by the order service.
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (models.ProductView, error)
	CheckStock(ctx context.Context, productID string) (models.StockView, error)
	AdjustStock(ctx context.Context, productID string, delta int) (models.StockView, error)
}

// Reservation is the outcome of CheckAndReserve.
//
// Product.Available=false means the product could not be fetched. Otherwise Reserved says
// whether the decrement went through; when it did not, Rejected separates a refusal by the
// catalog (not enough stock) from a fault (timeout, open circuit).
type Reservation struct {
	Product  models.RemoteProductView
	Quantity int
	Reserved bool
	Rejected bool
}

// InventoryCoordinator reserves and releases stock on the catalog service.
// It keeps no local stock state; the catalog alone decides sufficiency.
type InventoryCoordinator struct {
	catalog ProductCatalog
	caller  *resilience.Caller
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewInventoryCoordinator creates an InventoryCoordinator guarded by caller.
func NewInventoryCoordinator(catalog ProductCatalog, caller *resilience.Caller, logger *zap.Logger, m *metrics.Metrics) *InventoryCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryCoordinator{catalog: catalog, caller: caller, logger: logger, metrics: m}
}

// FetchProduct returns a product snapshot, or a view with Available=false.
func (c *InventoryCoordinator) FetchProduct(ctx context.Context, productID string) models.RemoteProductView {
	degraded := models.RemoteProductView{ProductID: productID}
	res := resilience.Do(ctx, c.caller, resilience.Read, "getProduct",
		func(ctx context.Context) (models.RemoteProductView, error) {
			p, err := c.catalog.GetProduct(ctx, productID)
			if err != nil {
				return models.RemoteProductView{}, err
			}
			return models.RemoteProductView{
				ProductID: productID,
				Name:      p.Name,
				Price:     p.Price,
				Available: true,
			}, nil
		}, degraded)
	return res.Value
}

// CheckAndReserve fetches the product and then asks the catalog to decrement its stock by qty.
func (c *InventoryCoordinator) CheckAndReserve(ctx context.Context, productID string, qty int) Reservation {
	r := Reservation{Quantity: qty}
	r.Product = c.FetchProduct(ctx, productID)
	if !r.Product.Available {
		return r
	}

	res := resilience.Do(ctx, c.caller, resilience.Mutation, "decreaseStock",
		func(ctx context.Context) (struct{}, error) {
			_, err := c.catalog.AdjustStock(ctx, productID, -qty)
			return struct{}{}, err
		}, struct{}{})
	r.Reserved = res.Available
	r.Rejected = resilience.IsRejected(res.Err)
	return r
}

// Release gives qty units back to the catalog. It runs even if ctx has been cancelled,
// never returns an error and reports whether the catalog accepted the increment.
func (c *InventoryCoordinator) Release(ctx context.Context, productID string, qty int) bool {
	ctx = context.WithoutCancel(ctx)
	res := resilience.Do(ctx, c.caller, resilience.Mutation, "increaseStock",
		func(ctx context.Context) (struct{}, error) {
			_, err := c.catalog.AdjustStock(ctx, productID, qty)
			return struct{}{}, err
		}, struct{}{})

	c.metrics.StockRelease(res.Available)
	if !res.Available {
		c.logger.Error("failed to release reserved stock",
			zap.String("product_id", productID),
			zap.Int("quantity", qty),
			zap.Error(res.Err),
		)
		return false
	}
	return true
}

// Availability reports the current stock figure for a product without changing it.
func (c *InventoryCoordinator) Availability(ctx context.Context, productID string) models.RemoteStockView {
	degraded := models.RemoteStockView{ProductID: productID}
	res := resilience.Do(ctx, c.caller, resilience.Read, "checkStock",
		func(ctx context.Context) (models.RemoteStockView, error) {
			s, err := c.catalog.CheckStock(ctx, productID)
			if err != nil {
				return models.RemoteStockView{}, err
			}
			return models.RemoteStockView{
				ProductID:     productID,
				StockQuantity: s.StockQuantity,
				InStock:       s.Available && s.StockQuantity > 0,
				Available:     true,
			}, nil
		}, degraded)
	return res.Value
}
