package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/events"
	"github.com/sst-resolve/resolve-service/internal/lifecycle"
	"github.com/sst-resolve/resolve-service/internal/repository"
	apperrors "github.com/sst-resolve/resolve-service/pkg/util/errorutil"
)

// AssignmentService handles ticket assignment operations.
type AssignmentService struct {
	store   repository.Transactor
	machine *lifecycle.Machine
	logger  *zap.Logger
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Store   repository.Transactor
	Machine *lifecycle.Machine
	Logger  *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	machine := deps.Machine
	if machine == nil {
		machine = lifecycle.NewMachine(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{store: deps.Store, machine: machine, logger: logger}
}

// Reassign moves the ticket to assigneeID, or unassigns it when assigneeID is nil.
// The new assignee must exist and be admin tier. Status is unchanged.
func (s *AssignmentService) Reassign(ctx context.Context, actor domain.Actor, ticketID int64, assigneeID *string) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if assigneeID != nil {
		trimmed := strings.TrimSpace(*assigneeID)
		if trimmed == "" {
			return nil, apperrors.NewValidationError("assignee_id must not be blank", nil)
		}
		assigneeID = &trimmed
	}

	var (
		result *domain.Ticket
		tr     lifecycle.Transition
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket, err := lockTicket(ctx, repos, ticketID)
		if err != nil {
			return err
		}
		if err := lifecycle.CheckReassign(ticket, actor); err != nil {
			return err
		}
		if assigneeID != nil {
			if err := requireAssignable(ctx, repos, *assigneeID); err != nil {
				return err
			}
		}
		tr, err = s.machine.Reassign(ticket, actor, assigneeID)
		if err != nil {
			return err
		}
		result = ticket
		if !tr.Changed {
			return nil
		}
		return record(ctx, repos, ticket, tr, events.EventTicketReassigned, payloadFor(tr))
	})
	if err != nil {
		return nil, err
	}
	if tr.Changed {
		s.logger.Info("ticket reassigned",
			zap.Int64("ticket_id", ticketID),
			zap.String("actor_id", actor.UserID),
			zap.Stringp("assignee_id", tr.NewAssignee))
	}
	return result, nil
}

func requireAssignable(ctx context.Context, repos repository.Repositories, userID string) error {
	user, err := repos.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("assignee", map[string]any{"assignee_id": userID})
		}
		return apperrors.MapError(err)
	}
	if !user.Role.IsAdminTier() {
		return apperrors.NewValidationError("assignee must be an admin", map[string]any{
			"assignee_id": userID,
			"role":        string(user.Role),
		})
	}
	return nil
}
