package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/events"
	"github.com/sst-resolve/resolve-service/internal/lifecycle"
	"github.com/sst-resolve/resolve-service/internal/repository"
	"github.com/sst-resolve/resolve-service/internal/sla"
	apperrors "github.com/sst-resolve/resolve-service/pkg/util/errorutil"
)

// PolicyResolver resolves the SLA policy for a (domain, scope) pair.
type PolicyResolver interface {
	Resolve(ctx context.Context, domainID int64, scopeID *int64) (sla.Policy, error)
}

// TicketService coordinates ticket workflows. Every mutating call runs as one
// unit of work: lock, validate, write ticket, history and outbox, commit.
type TicketService struct {
	store    repository.Transactor
	resolver PolicyResolver
	machine  *lifecycle.Machine
	logger   *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store    repository.Transactor
	Resolver PolicyResolver
	Machine  *lifecycle.Machine
	Logger   *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	CategoryID       int64
	SubcategoryID    *int64
	SubSubcategoryID *int64
	ScopeID          *int64
	Description      string
	DynamicFields    json.RawMessage
}

// TicketDetails is a ticket as seen by one actor.
type TicketDetails struct {
	Ticket  *domain.Ticket
	History []domain.TicketHistory
	SLA     sla.View
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	machine := deps.Machine
	if machine == nil {
		machine = lifecycle.NewMachine(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		store:    deps.Store,
		resolver: deps.Resolver,
		machine:  machine,
		logger:   logger,
	}
}

// CreateTicket opens a ticket for actor and stamps its SLA deadlines.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, apperrors.NewValidationError("description is required", nil)
	}
	if input.CategoryID <= 0 {
		return nil, apperrors.NewValidationError("category_id is required", nil)
	}

	reads := s.store.Repositories()
	category, err := reads.Categories.GetCategory(ctx, input.CategoryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("category", map[string]any{"category_id": input.CategoryID})
		}
		return nil, apperrors.MapError(err)
	}
	if !category.IsActive {
		return nil, apperrors.NewValidationError("category is not accepting tickets", map[string]any{"category_id": category.ID})
	}
	if input.ScopeID != nil {
		scope, err := reads.Categories.GetScope(ctx, *input.ScopeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("scope", map[string]any{"scope_id": *input.ScopeID})
			}
			return nil, apperrors.MapError(err)
		}
		if scope.CategoryID != category.ID || !scope.IsActive {
			return nil, apperrors.NewValidationError("scope does not belong to category", map[string]any{
				"scope_id":    scope.ID,
				"category_id": category.ID,
			})
		}
	}

	policy, err := s.resolver.Resolve(ctx, category.ID, input.ScopeID)
	if err != nil {
		return nil, err
	}

	now := s.machine.Now()
	ticket := &domain.Ticket{
		CreatedBy:            actor.UserID,
		CategoryID:           category.ID,
		SubcategoryID:        input.SubcategoryID,
		SubSubcategoryID:     input.SubSubcategoryID,
		ScopeID:              input.ScopeID,
		Status:               domain.TicketStatusOpen,
		Description:          description,
		AcknowledgementDueAt: sla.ComputeDueTimestamp(now, policy.AckHours),
		ResolutionDueAt:      sla.ComputeDueTimestamp(now, policy.ResolutionHours),
		Metadata:             domain.Metadata{DynamicFields: input.DynamicFields},
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return apperrors.MapError(err)
		}
		tr := lifecycle.Transition{
			TicketID: ticket.ID,
			Actor:    actor,
			From:     domain.TicketStatusOpen,
			To:       domain.TicketStatusOpen,
			At:       now,
			Changed:  true,
		}
		if err := repos.History.Create(ctx, &domain.TicketHistory{
			TicketID:      ticket.ID,
			ChangedByRole: actor.Role,
			ChangedByID:   actor.UserID,
			ChangeType:    domain.ChangeTypeCreated,
			NewValue: map[string]any{
				"status":                 ticket.Status,
				"acknowledgement_due_at": ticket.AcknowledgementDueAt,
				"resolution_due_at":      ticket.ResolutionDueAt,
			},
			CreatedAt: now,
		}); err != nil {
			return apperrors.MapError(err)
		}
		return enqueue(ctx, repos, tr, events.EventTicketCreated, events.TicketEventPayload{
			CreatedBy:  ticket.CreatedBy,
			CategoryID: ticket.CategoryID,
			NewStatus:  ticket.Status,
			DueAt:      ticket.ResolutionDueAt,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket created",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("actor_id", actor.UserID),
		zap.Int64("category_id", ticket.CategoryID))
	return ticket, nil
}

// GetTicket returns the ticket with comments filtered for actor. Staff also get the history.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID int64) (*TicketDetails, error) {
	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	staff := actor.Role.SeesInternal()
	ticket.Metadata.Comments = ticket.Metadata.VisibleComments(staff)

	details := &TicketDetails{
		Ticket: ticket,
		SLA:    sla.Snapshot(ticket, s.machine.Now()),
	}
	if staff {
		history, err := s.store.Repositories().History.ListByTicket(ctx, ticketID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		details.History = history
	}
	return details, nil
}

// SLAStatus reports the ticket's deadlines and breach state at the current time.
func (s *TicketService) SLAStatus(ctx context.Context, actor domain.Actor, ticketID int64) (sla.View, error) {
	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return sla.View{}, err
	}
	return sla.Snapshot(ticket, s.machine.Now()), nil
}

func (s *TicketService) loadVisible(ctx context.Context, actor domain.Actor, ticketID int64) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if ticketID <= 0 {
		return nil, apperrors.NewValidationError("invalid ticket id", map[string]any{"ticket_id": ticketID})
	}
	ticket, err := s.store.Repositories().Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if err := lifecycle.Authorize(lifecycle.ActionView, actor, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Acknowledge records first staff contact.
func (s *TicketService) Acknowledge(ctx context.Context, actor domain.Actor, ticketID int64, message string) (*domain.Ticket, error) {
	return s.mutate(ctx, actor, ticketID, events.EventTicketAcknowledged, func(t *domain.Ticket) (lifecycle.Transition, error) {
		return s.machine.Acknowledge(t, actor, message)
	})
}

// AddComment appends a comment and applies the conversation status rules.
func (s *TicketService) AddComment(ctx context.Context, actor domain.Actor, ticketID int64, text string, visibility domain.CommentVisibility) (*domain.Ticket, error) {
	return s.mutate(ctx, actor, ticketID, events.EventTicketCommentAdded, func(t *domain.Ticket) (lifecycle.Transition, error) {
		return s.machine.Comment(t, actor, text, visibility)
	})
}

// Resolve closes the ticket; resolving twice succeeds without a second event.
func (s *TicketService) Resolve(ctx context.Context, actor domain.Actor, ticketID int64) (*domain.Ticket, error) {
	return s.mutate(ctx, actor, ticketID, events.EventTicketResolved, func(t *domain.Ticket) (lifecycle.Transition, error) {
		return s.machine.Resolve(t, actor)
	})
}

// Reopen returns a resolved ticket to the queue.
func (s *TicketService) Reopen(ctx context.Context, actor domain.Actor, ticketID int64) (*domain.Ticket, error) {
	return s.mutate(ctx, actor, ticketID, events.EventTicketReopened, func(t *domain.Ticket) (lifecycle.Transition, error) {
		return s.machine.Reopen(t, actor)
	})
}

// Rate stores the creator's score for a resolved ticket.
func (s *TicketService) Rate(ctx context.Context, actor domain.Actor, ticketID int64, score int, feedback string) (*domain.Ticket, error) {
	return s.mutate(ctx, actor, ticketID, events.EventTicketRated, func(t *domain.Ticket) (lifecycle.Transition, error) {
		return s.machine.Rate(t, actor, score, feedback)
	})
}

// ExtendTAT moves the resolution deadline to now plus the parsed duration text.
func (s *TicketService) ExtendTAT(ctx context.Context, actor domain.Actor, ticketID int64, duration string) (*domain.Ticket, error) {
	if strings.TrimSpace(duration) == "" {
		return nil, apperrors.NewValidationError("duration is required", nil)
	}
	extension := sla.ParseDuration(duration)
	return s.mutate(ctx, actor, ticketID, events.EventTicketTATExtended, func(t *domain.Ticket) (lifecycle.Transition, error) {
		return s.machine.ExtendTAT(t, actor, extension)
	})
}

func (s *TicketService) mutate(ctx context.Context, actor domain.Actor, ticketID int64, eventType events.EventType, apply func(t *domain.Ticket) (lifecycle.Transition, error)) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var result *domain.Ticket
	var tr lifecycle.Transition
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket, err := lockTicket(ctx, repos, ticketID)
		if err != nil {
			return err
		}
		tr, err = apply(ticket)
		if err != nil {
			return err
		}
		result = ticket
		if !tr.Changed {
			return nil
		}
		payload := payloadFor(tr)
		if tr.Action == lifecycle.ActionRate {
			payload.Rating = ticket.Rating
		}
		return record(ctx, repos, ticket, tr, eventType, payload)
	})
	if err != nil {
		return nil, err
	}
	if tr.Changed {
		s.logger.Info("ticket transition applied",
			zap.Int64("ticket_id", ticketID),
			zap.String("action", string(tr.Action)),
			zap.String("actor_id", tr.Actor.UserID),
			zap.String("from", string(tr.From)),
			zap.String("to", string(tr.To)))
	}
	return result, nil
}
