package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/botflow/pkg/cmd"
	"github.com/dukex/botflow/pkg/eventbus"
	"github.com/dukex/botflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	app      *cmd.App
	inbound  eventbus.InboundBus
	validate *validator.Validate
}

// NewAPI builds the HTTP surface. A nil inbound bus makes the webhook run the
// engine inline.
func NewAPI(logger *slog.Logger, app *cmd.App, inbound eventbus.InboundBus) *API {
	return &API{
		logger:   logger,
		app:      app,
		inbound:  inbound,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.app.Flows,
		a.app.Publishing,
		a.app.Executions,
		a.validate,
		a.app.Registry,
		a.app.Engine,
		a.inbound,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Botflow API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(app *fiber.App, port int) error {
	a.logger.Info("Starting API", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
