package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sst-resolve/resolve-service/internal/auth"
	"github.com/sst-resolve/resolve-service/internal/service"
	apperrors "github.com/sst-resolve/resolve-service/pkg/util/errorutil"
)

// AnalyticsHandler serves admin reporting endpoints.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Summary GET /admin/analytics?days=N.
func (h *AnalyticsHandler) Summary(c *fiber.Ctx) error {
	days := 0
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return apperrors.NewValidationError("days must be an integer", map[string]any{"days": raw})
		}
		days = parsed
	}
	summary, err := h.analytics.Summary(c.UserContext(), auth.ActorFromContext(c), days)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}
