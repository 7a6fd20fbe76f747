package httpserver

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/sixtyapp/engagement-engine/internal/jobs"
	"github.com/sixtyapp/engagement-engine/internal/middleware"
	"github.com/sixtyapp/engagement-engine/internal/monitoring"
	"github.com/sixtyapp/engagement-engine/internal/webhook"
	"github.com/sixtyapp/engagement-engine/services/api/internal/sentry"
)

// Dependencies are the handlers and shared infrastructure the API
// server mounts routes on top of. Every field is optional except
// CronSecret; a nil Webhook/Health/Metrics/Jobs skips its routes,
// which keeps this usable from tests that only care about one surface.
type Dependencies struct {
	CronSecret string
	Webhook    *webhook.TelephonyWebhookConfig
	Health     *monitoring.HealthChecker
	Metrics    *monitoring.MetricsCollector
	Jobs       *jobs.Handlers
}

// New builds the fiber app: logging and Sentry middleware, followed by
// the health/metrics/webhook/admin routes.
func New(deps Dependencies) *fiber.App {
	app := fiber.New()

	app.Use(sentry.FiberMiddleware())
	app.Use(middleware.LoggingMiddleware(middleware.DefaultLoggingConfig()))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "engagement engine API is running",
		})
	})

	if deps.Health != nil {
		app.Get("/health", deps.Health.HealthHandler())
		app.Get("/healthz", deps.Health.LivenessHandler())
		app.Get("/readyz", deps.Health.ReadinessHandler())
		app.Get("/livez", deps.Health.LivenessHandler())
	}

	if deps.Metrics != nil {
		app.Get("/metrics", deps.Metrics.PrometheusHandler())
		app.Get("/metrics.json", deps.Metrics.JSONHandler())
	}

	if deps.Webhook != nil {
		app.Post("/webhook/telephony", deps.Webhook.FiberHandler())
	}

	if deps.Jobs != nil {
		admin := app.Group("/admin", cronAuth(deps.CronSecret))
		admin.Post("/trigger/:feature", triggerFeatureHandler(deps.Jobs))
	}

	return app
}

// cronAuth requires either the shared cron secret (X-Cron-Secret header,
// used by the scheduled-job invoker) or a bearer token matching it.
func cronAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return fiber.NewError(fiber.StatusForbidden, "admin endpoints disabled: no cron secret configured")
		}

		provided := c.Get("X-Cron-Secret")
		if provided == "" {
			if auth := c.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
				provided = auth[7:]
			}
		}

		if provided != secret {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid cron secret")
		}

		return c.Next()
	}
}

// triggerFeatureHandler runs a scheduled feature's job on demand,
// bypassing asynq — used for manual re-sends and as a cron-invocation
// fallback when the asynq scheduler is unavailable.
func triggerFeatureHandler(h *jobs.Handlers) fiber.Handler {
	return func(c *fiber.Ctx) error {
		feature := c.Params("feature")
		if feature == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing feature parameter")
		}

		ctx := c.UserContext()
		if ctx == nil {
			ctx = context.Background()
		}

		if err := h.TriggerFeature(ctx, feature); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		return c.JSON(fiber.Map{"feature": feature, "status": "triggered"})
	}
}
