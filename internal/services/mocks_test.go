package services_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tokoorder/internal/metrics"
	"tokoorder/internal/models"
	"tokoorder/internal/repositories"
	"tokoorder/internal/resilience"
	"tokoorder/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockUserDirectory is a mock implementation of services.UserDirectory
type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) GetUser(ctx context.Context, userID string) (models.UserView, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.UserView), args.Error(1)
}

// MockProductCatalog is a mock implementation of services.ProductCatalog
type MockProductCatalog struct {
	mock.Mock
}

func (m *MockProductCatalog) GetProduct(ctx context.Context, productID string) (models.ProductView, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(models.ProductView), args.Error(1)
}

func (m *MockProductCatalog) CheckStock(ctx context.Context, productID string) (models.StockView, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(models.StockView), args.Error(1)
}

func (m *MockProductCatalog) AdjustStock(ctx context.Context, productID string, delta int) (models.StockView, error) {
	args := m.Called(ctx, productID, delta)
	return args.Get(0).(models.StockView), args.Error(1)
}

// MockBus is a mock implementation of services.Bus
type MockBus struct {
	mock.Mock
}

func (m *MockBus) Publish(ctx context.Context, routingKey, key string, body []byte) error {
	args := m.Called(ctx, routingKey, key, body)
	return args.Error(0)
}

// events decodes every published body, in call order.
func (m *MockBus) events(t *testing.T) []models.DomainEvent {
	t.Helper()
	var out []models.DomainEvent
	for _, call := range m.Calls {
		if call.Method != "Publish" {
			continue
		}
		var event models.DomainEvent
		require.NoError(t, json.Unmarshal(call.Arguments.Get(3).([]byte), &event))
		out = append(out, event)
	}
	return out
}

type fixture struct {
	users     *MockUserDirectory
	catalog   *MockProductCatalog
	bus       *MockBus
	repo      repositories.OrderRepository
	metrics   *metrics.Metrics
	events    *services.EventPublisher
	inventory *services.InventoryCoordinator
	service   *services.OrderService
}

func fastPolicy() resilience.Policy {
	return resilience.Policy{
		Timeout:          time.Second,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       time.Millisecond,
		FailureThreshold: 100,
		CoolDown:         time.Second,
	}
}

func newFixture(t *testing.T, repo repositories.OrderRepository) *fixture {
	t.Helper()
	if repo == nil {
		repo = repositories.NewMockOrderRepository()
	}
	f := &fixture{
		users:   new(MockUserDirectory),
		catalog: new(MockProductCatalog),
		bus:     new(MockBus),
		repo:    repo,
		metrics: metrics.New(),
	}
	userCaller := resilience.NewCaller("user-service", fastPolicy(), resilience.WithMetrics(f.metrics))
	productCaller := resilience.NewCaller("product-service", fastPolicy(), resilience.WithMetrics(f.metrics))

	f.events = services.NewEventPublisher(f.bus, nil, f.metrics)
	f.inventory = services.NewInventoryCoordinator(f.catalog, productCaller, nil, f.metrics)
	f.service = services.NewOrderService(
		repo,
		services.NewIdentityVerifier(f.users, userCaller),
		f.inventory,
		f.events,
		nil,
		f.metrics,
	)
	return f
}

func (f *fixture) activeUser(id string) {
	f.users.On("GetUser", mock.Anything, id).
		Return(models.UserView{UserID: id, Name: "Budi", Email: id + "@toko.test", Status: "ACTIVE"}, nil)
}

func (f *fixture) product(id, name, price string) {
	f.catalog.On("GetProduct", mock.Anything, id).
		Return(models.ProductView{ProductID: id, Name: name, Price: decimal.RequireFromString(price), Status: "ACTIVE"}, nil)
}

func (f *fixture) stockChange(id string, delta int, err error) *mock.Call {
	return f.catalog.On("AdjustStock", mock.Anything, id, delta).Return(models.StockView{ProductID: id}, err)
}

func (f *fixture) acceptEvents() {
	f.bus.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

func address() models.ShippingAddress {
	return models.ShippingAddress{
		ZipCode:        "12345",
		Address:        "Jl. Sudirman 1",
		DetailAddress:  "Lt. 3",
		RecipientName:  "Budi",
		RecipientPhone: "08123456789",
	}
}

func twoLineInput() services.CreateOrderInput {
	return services.CreateOrderInput{
		UserID: "u1",
		Items: []services.OrderItemInput{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
		ShippingAddress: address(),
	}
}

// storedOrder saves a two-line order directly in status.
func storedOrder(t *testing.T, repo repositories.OrderRepository, status models.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{UserID: "u1", Status: status, ShippingAddress: address()}
	order.AddLine(models.OrderLine{ProductID: "p1", ProductName: "Kopi", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2})
	order.AddLine(models.OrderLine{ProductID: "p2", ProductName: "Teh", UnitPrice: decimal.RequireFromString("5.00"), Quantity: 1})
	order.CalculateTotal()
	require.NoError(t, repo.Save(context.Background(), order))
	return order
}
