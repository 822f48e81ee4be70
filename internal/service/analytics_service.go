package service

import (
	"context"
	"time"

	"github.com/sst-resolve/resolve-service/internal/analytics"
	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/lifecycle"
	"github.com/sst-resolve/resolve-service/internal/repository"
	apperrors "github.com/sst-resolve/resolve-service/pkg/util/errorutil"
)

const (
	defaultAnalyticsDays = 30
	maxAnalyticsDays     = 365
)

// AnalyticsService produces the admin dashboard summary.
type AnalyticsService struct {
	store   repository.Transactor
	machine *lifecycle.Machine
}

// NewAnalyticsService creates the service.
func NewAnalyticsService(store repository.Transactor, machine *lifecycle.Machine) *AnalyticsService {
	if machine == nil {
		machine = lifecycle.NewMachine(nil)
	}
	return &AnalyticsService{store: store, machine: machine}
}

// Summary aggregates tickets created in the last days days. Zero means the default window.
func (s *AnalyticsService) Summary(ctx context.Context, actor domain.Actor, days int) (analytics.Summary, error) {
	if actor.UserID == "" || actor.Role == "" {
		return analytics.Summary{}, apperrors.NewUnauthorized("authentication required")
	}
	if !actor.Role.SeesInternal() {
		return analytics.Summary{}, apperrors.NewForbidden("only staff may view analytics", map[string]any{
			"role": string(actor.Role),
		})
	}
	if days == 0 {
		days = defaultAnalyticsDays
	}
	if days < 0 || days > maxAnalyticsDays {
		return analytics.Summary{}, apperrors.NewValidationError("days must be between 1 and 365", map[string]any{"days": days})
	}

	now := s.machine.Now()
	since := now.Add(-time.Duration(days) * 24 * time.Hour)
	tickets, err := s.store.Repositories().Tickets.ListCreatedSince(ctx, since)
	if err != nil {
		return analytics.Summary{}, apperrors.MapError(err)
	}
	return analytics.Summarize(tickets, now), nil
}
