package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/escalation"
	"github.com/sst-resolve/resolve-service/internal/events"
	"github.com/sst-resolve/resolve-service/internal/lifecycle"
	"github.com/sst-resolve/resolve-service/internal/repository"
	apperrors "github.com/sst-resolve/resolve-service/pkg/util/errorutil"
)

// EscalationService moves unresolved tickets up their escalation chain.
type EscalationService struct {
	store    repository.Transactor
	resolver PolicyResolver
	machine  *lifecycle.Machine
	logger   *zap.Logger
}

// EscalationDependencies bundles collaborators.
type EscalationDependencies struct {
	Store    repository.Transactor
	Resolver PolicyResolver
	Machine  *lifecycle.Machine
	Logger   *zap.Logger
}

// EscalationResult describes where the ticket went.
type EscalationResult struct {
	Ticket      *domain.Ticket
	NewLevel    int
	NewAssignee *domain.Identity
	NewStatus   domain.TicketStatus
	EscalatedTo string
	Urgent      bool
}

// NewEscalationService creates the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	machine := deps.Machine
	if machine == nil {
		machine = lifecycle.NewMachine(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		store:    deps.Store,
		resolver: deps.Resolver,
		machine:  machine,
		logger:   logger,
	}
}

// Escalate raises the ticket one level. The level bump, status change, reassignment,
// history row and outbox event commit together or not at all. The SYSTEM actor
// produces an automatic escalation event, everyone else a manual one.
func (s *EscalationService) Escalate(ctx context.Context, actor domain.Actor, ticketID int64, reason string) (*EscalationResult, error) {
	if ticketID <= 0 {
		return nil, apperrors.NewValidationError("invalid ticket id", map[string]any{"ticket_id": ticketID})
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var result *EscalationResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket, err := lockTicket(ctx, repos, ticketID)
		if err != nil {
			return err
		}
		if err := lifecycle.CheckEscalation(ticket, actor); err != nil {
			return err
		}

		policy, err := s.resolver.Resolve(ctx, ticket.CategoryID, ticket.ScopeID)
		if err != nil {
			return err
		}
		decision := escalation.Plan(ticket, policy)

		tr, err := s.machine.Escalate(ticket, actor, decision.NewLevel, decision.Assignee())
		if err != nil {
			return err
		}

		eventType := events.EventTicketEscalatedManual
		if actor.IsSystem() {
			eventType = events.EventTicketEscalatedAuto
		}
		payload := payloadFor(tr)
		payload.Reason = events.Truncate(reason)
		payload.Escalation = &events.EscalationInfo{
			EscalatedTo:    decision.EscalatedTo,
			Urgent:         decision.Urgent,
			SuperAdmin:     decision.SuperAdmin,
			Target:         decision.Target,
			PreviousStatus: tr.From,
		}
		if err := record(ctx, repos, ticket, tr, eventType, payload); err != nil {
			return err
		}

		result = &EscalationResult{
			Ticket:      ticket,
			NewLevel:    ticket.EscalationLevel,
			NewAssignee: decision.Target,
			NewStatus:   ticket.Status,
			EscalatedTo: decision.EscalatedTo,
			Urgent:      decision.Urgent,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket escalated",
		zap.Int64("ticket_id", ticketID),
		zap.String("actor_id", actor.UserID),
		zap.Int("level", result.NewLevel),
		zap.String("escalated_to", result.EscalatedTo),
		zap.Bool("urgent", result.Urgent))
	return result, nil
}
