package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sst-resolve/resolve-service/internal/api/http/handlers"
	"github.com/sst-resolve/resolve-service/internal/auth"
	"github.com/sst-resolve/resolve-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Analytics      *handlers.AnalyticsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/sla", cfg.Tickets.SLAStatus)
	tickets.Post("/:id/acknowledge", cfg.Tickets.Acknowledge)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Post("/:id/escalate", cfg.Tickets.Escalate)
	tickets.Post("/:id/reassign", cfg.Tickets.Reassign)
	tickets.Post("/:id/resolve", cfg.Tickets.Resolve)
	tickets.Post("/:id/reopen", cfg.Tickets.Reopen)
	tickets.Post("/:id/rating", cfg.Tickets.Rate)
	tickets.Post("/:id/tat", cfg.Tickets.ExtendTAT)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle,
		auth.RequireRoles(domain.RoleAdmin, domain.RoleSuperAdmin, domain.RoleCommittee))
	admin.Get("/analytics", cfg.Analytics.Summary)
}
