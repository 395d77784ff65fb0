// Package main provides the Approvio API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/approvio/approvio/pkg/eventbus"
	"github.com/approvio/approvio/pkg/notification"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/approvio/approvio/pkg/services"
	"github.com/approvio/approvio/pkg/web"
	"github.com/approvio/approvio/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	templateService := services.NewTemplate(a.persistence, a.validate)
	notifier := notification.NewEventBusNotifier(a.eventBus)
	publisher := workflow.NewEventPublisher(a.eventBus, a.logger)
	engine := workflow.NewEngine(a.persistence, templateService, notifier, publisher, a.logger)

	handlers := web.NewAPIHandlers(templateService, engine, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Approvio API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shutdown API server", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
