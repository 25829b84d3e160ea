// Package main provides the Quarry API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/quarryhq/quarry/pkg/persistence"
	"github.com/quarryhq/quarry/pkg/services"
	"github.com/quarryhq/quarry/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence)
	boardSyncService := services.NewBoardSync(a.persistence, a.logger)
	guardService := services.NewUsageGuard(a.persistence)
	draftService := services.NewDraft(a.persistence, boardSyncService, guardService, a.logger)
	transitionService := services.NewTransition(a.persistence, a.logger)

	handlers := web.NewAPIHandlers(workflowService, draftService, transitionService, guardService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Quarry API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/clone", handlers.CloneWorkflow)

	// Draft lifecycle:
	w.Post("/:id/draft", handlers.StartDraft)
	w.Get("/:id/draft", handlers.GetDraft)

	// Graph edit surface (drafts, or unused published workflows):
	w.Post("/:id/steps", handlers.AddStep)
	w.Patch("/:id/steps", handlers.UpdateStep)
	w.Delete("/:id/steps/:statusId", handlers.RemoveStep)
	w.Get("/:id/steps/:statusId/removal-check", handlers.StepRemovalCheck)
	w.Post("/:id/transitions", handlers.AddTransition)
	w.Patch("/:id/transitions", handlers.UpdateTransition)
	w.Delete("/:id/transitions/:transitionId", handlers.RemoveTransition)

	d := app.Group("/drafts")
	d.Post("/:id/publish", handlers.PublishDraft)
	d.Delete("/:id", handlers.DiscardDraft)

	i := app.Group("/issues")
	i.Post("/:id/transitions", handlers.ExecuteTransition)
	i.Get("/:id/transitions", handlers.GetAllowedTargets)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
