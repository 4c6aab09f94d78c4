package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-exam-api/internal/config"
	"github.com/noah-isme/gema-exam-api/internal/handler"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ExamHandler       *handler.ExamHandler
	ExerciseHandler   *handler.ExerciseHandler
	SubmissionHandler *handler.SubmissionHandler
	ResultHandler     *handler.ResultHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	secured := api.Group("", jwtMiddleware, middleware.RequireCaller())

	// Result routes go first so the websocket upgrade is matched before
	// the generic solution routes.
	if deps.ResultHandler != nil {
		deps.ResultHandler.Register(secured)
	}
	if deps.ExamHandler != nil {
		deps.ExamHandler.Register(secured)
	}
	if deps.ExerciseHandler != nil {
		deps.ExerciseHandler.Register(secured)
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(secured)
	}
}
