package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tokoorder/internal/clients"
	"tokoorder/internal/config"
	"tokoorder/internal/handlers"
	"tokoorder/internal/logging"
	"tokoorder/internal/metrics"
	"tokoorder/internal/middleware"
	"tokoorder/internal/observability"
	"tokoorder/internal/repositories"
	"tokoorder/internal/resilience"
	"tokoorder/internal/services"
	"tokoorder/pkg/kafka"
	"tokoorder/pkg/rabbitmq"
)

const serviceVersion = "1.0.0"

// application is the wired service: HTTP app plus the resources it must release on shutdown.
type application struct {
	app     *fiber.App
	events  *services.EventPublisher
	closers []func() error
	logger  *zap.Logger
}

func main() {
	cfg, err := config.Load(viper.New())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName:    "order-service",
		ServiceVersion: serviceVersion,
		Endpoint:       cfg.OTLPEndpoint,
	})
	if err != nil {
		zapLogger.Fatal("failed to set up tracing", zap.Error(err))
	}

	a, err := newApplication(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to initialise application", zap.Error(err))
	}
	zapLogger.Info("configuration loaded", zap.String("summary", cfg.Summary()))

	go func() {
		zapLogger.Info("starting server", zap.String("port", cfg.AppPort))
		if err := a.app.Listen(cfg.AppPort); err != nil {
			zapLogger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	a.shutdown()
	if err := shutdownTracing(shutdownCtx); err != nil {
		zapLogger.Warn("tracing shutdown failed", zap.Error(err))
	}
	zapLogger.Info("server gracefully stopped")
}

func openRepository(cfg *config.Config) (repositories.OrderRepository, func() error, error) {
	if cfg.DatabaseDriver == "memory" {
		return repositories.NewMockOrderRepository(), nil, nil
	}
	db, err := repositories.OpenDatabase(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	return repositories.NewGORMOrderRepository(db), sqlDB.Close, nil
}

// openBus returns a nil Bus when EVENT_BUS=none.
func openBus(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (services.Bus, func() error, error) {
	switch cfg.EventBus {
	case "rabbitmq":
		client, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL, Exchange: cfg.EventsTopic}, zapLogger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.EventsAuditConsumer {
			if err := client.ConsumeOrderEvents(ctx, handlers.NewOrderEventAuditor(zapLogger.Named("audit"))); err != nil {
				client.Close()
				return nil, nil, err
			}
		}
		return client, client.Close, nil
	case "kafka":
		publisher, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.EventsTopic)
		if err != nil {
			return nil, nil, err
		}
		return publisher, publisher.Close, nil
	default:
		return nil, nil, nil
	}
}

func newApplication(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (*application, error) {
	a := &application{logger: zapLogger}
	m := metrics.New()

	orderRepo, closeDB, err := openRepository(cfg)
	if err != nil {
		return nil, err
	}
	if closeDB != nil {
		a.closers = append(a.closers, closeDB)
	}

	bus, closeBus, err := openBus(ctx, cfg, zapLogger)
	if err != nil {
		a.close()
		return nil, err
	}
	if closeBus != nil {
		a.closers = append(a.closers, closeBus)
	}

	userCaller := resilience.NewCaller("user-service", cfg.UserPolicy,
		resilience.WithLogger(zapLogger), resilience.WithMetrics(m))
	productCaller := resilience.NewCaller("product-service", cfg.ProductPolicy,
		resilience.WithLogger(zapLogger), resilience.WithMetrics(m))

	identity := services.NewIdentityVerifier(
		clients.NewUserServiceClient(cfg.UserServiceURL, cfg.UserPolicy.Timeout), userCaller)
	inventory := services.NewInventoryCoordinator(
		clients.NewProductServiceClient(cfg.ProductServiceURL, cfg.ProductPolicy.Timeout), productCaller, zapLogger, m)
	a.events = services.NewEventPublisher(bus, zapLogger, m)
	orderService := services.NewOrderService(orderRepo, identity, inventory, a.events, zapLogger, m)

	app := fiber.New(fiber.Config{
		AppName:               "order-service",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": cfg.DatabaseDriver,
			"eventBus": cfg.EventBus,
			"breakers": fiber.Map{
				userCaller.Name():    userCaller.State(),
				productCaller.Name(): productCaller.State(),
			},
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	apiV1 := app.Group("/api/v1")
	if cfg.JWTSecret != "" {
		apiV1.Use(middleware.AuthRequired(services.NewAuthService(cfg.JWTSecret), zapLogger))
	}
	handlers.NewOrderHandler(orderService, zapLogger).RegisterRoutes(apiV1)
	handlers.NewProductHandler(inventory).RegisterRoutes(apiV1)

	a.app = app
	return a, nil
}

// shutdown stops accepting requests, waits for in-flight events, then releases resources.
func (a *application) shutdown() {
	if err := a.app.ShutdownWithTimeout(config.ShutdownTimeout); err != nil {
		a.logger.Warn("error during fiber shutdown", zap.Error(err))
	}
	a.events.Flush()
	a.close()
}

func (a *application) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error while releasing resources", zap.Error(err))
	}
	a.closers = nil
}
