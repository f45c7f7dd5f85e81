package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kelasku-dev/kelasku-go-api/internal/config"
	"github.com/kelasku-dev/kelasku-go-api/internal/handler"
	"github.com/kelasku-dev/kelasku-go-api/internal/middleware"
	"github.com/kelasku-dev/kelasku-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler *handler.AssignmentHandler
	SubmissionHandler *handler.SubmissionHandler
	WebhookHandler    *handler.WebhookHandler
	LiveUpdateHandler *handler.LiveUpdateHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application. The webhook
// receiver stays outside the JWT surface: HMAC signatures authenticate it.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.WebhookHandler != nil {
		receiver := app.Group("/webhooks", middleware.RateLimit("webhooks", 60, time.Minute))
		deps.WebhookHandler.Register(receiver)

		operator := app.Group("/webhooks", jwtMiddleware, middleware.RequireRole("admin", "teacher"))
		deps.WebhookHandler.RegisterOperator(operator)
	}

	if deps.AssignmentHandler != nil {
		assignments := api.Group("/assignments", jwtMiddleware)
		deps.AssignmentHandler.Register(assignments)
	}

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", jwtMiddleware)
		deps.SubmissionHandler.Register(submissions)
	}

	if deps.LiveUpdateHandler != nil {
		ws := app.Group("/ws")
		deps.LiveUpdateHandler.Register(ws)
	}
}
