package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/events"
	"github.com/sst-resolve/resolve-service/internal/lifecycle"
	"github.com/sst-resolve/resolve-service/internal/repository"
	apperrors "github.com/sst-resolve/resolve-service/pkg/util/errorutil"
)

const commentPreviewLength = 120

// requireActor rejects calls without an identity before any ticket is read, so
// the answer never depends on whether the ticket exists.
func requireActor(actor domain.Actor) error {
	if actor.UserID == "" || actor.Role == "" {
		return apperrors.NewUnauthorized("authentication required")
	}
	return nil
}

// lockTicket loads the ticket row for update inside the current unit of work.
func lockTicket(ctx context.Context, repos repository.Repositories, ticketID int64) (*domain.Ticket, error) {
	if ticketID <= 0 {
		return nil, apperrors.NewValidationError("invalid ticket id", map[string]any{"ticket_id": ticketID})
	}
	ticket, err := repos.Tickets.GetForUpdate(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// record persists an applied transition: the ticket row, one history entry and
// the outbox events, all through repos so they share the caller's transaction.
func record(ctx context.Context, repos repository.Repositories, ticket *domain.Ticket, tr lifecycle.Transition, eventType events.EventType, payload events.TicketEventPayload) error {
	if err := repos.Tickets.Update(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}
	if err := repos.History.Create(ctx, historyFor(tr)); err != nil {
		return apperrors.MapError(err)
	}
	if err := enqueue(ctx, repos, tr, eventType, payload); err != nil {
		return err
	}
	// Acknowledge and comment carry their status change as a side effect, so
	// consumers watching status changes get a dedicated event as well.
	if tr.StatusChanged() && (tr.Action == lifecycle.ActionComment || tr.Action == lifecycle.ActionAcknowledge) {
		return enqueue(ctx, repos, tr, events.EventTicketStatusChanged, events.TicketEventPayload{
			OldStatus: tr.From,
			NewStatus: tr.To,
		})
	}
	return nil
}

func enqueue(ctx context.Context, repos repository.Repositories, tr lifecycle.Transition, eventType events.EventType, payload events.TicketEventPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("encode %s payload: %w", eventType, err))
	}
	if err := repos.Outbox.Enqueue(ctx, &domain.OutboxEvent{
		ID:        uuid.NewString(),
		EventType: string(eventType),
		TicketID:  tr.TicketID,
		Actor:     tr.Actor,
		Payload:   body,
		CreatedAt: tr.At,
	}); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// payloadFor copies the parts of a transition every event consumer needs.
func payloadFor(tr lifecycle.Transition) events.TicketEventPayload {
	payload := events.TicketEventPayload{
		OldStatus: tr.From,
		NewStatus: tr.To,
		OldLevel:  tr.OldLevel,
		NewLevel:  tr.NewLevel,
	}
	switch tr.Action {
	case lifecycle.ActionReassign, lifecycle.ActionEscalate:
		payload.OldAssignee = tr.OldAssignee
		payload.NewAssignee = tr.NewAssignee
	case lifecycle.ActionExtendTAT:
		payload.DueAt = tr.NewDueAt
	}
	if tr.Comment != nil {
		payload.CommentPreview = stringPreview(tr.Comment.Text, commentPreviewLength)
		payload.Visibility = tr.Comment.Visibility
	}
	return payload
}

var changeTypeByAction = map[lifecycle.Action]domain.TicketChangeType{
	lifecycle.ActionAcknowledge: domain.ChangeTypeAcknowledged,
	lifecycle.ActionComment:     domain.ChangeTypeComment,
	lifecycle.ActionEscalate:    domain.ChangeTypeEscalation,
	lifecycle.ActionReassign:    domain.ChangeTypeAssignee,
	lifecycle.ActionResolve:     domain.ChangeTypeResolved,
	lifecycle.ActionReopen:      domain.ChangeTypeReopened,
	lifecycle.ActionRate:        domain.ChangeTypeRated,
	lifecycle.ActionExtendTAT:   domain.ChangeTypeTATExtended,
	lifecycle.ActionSLABreach:   domain.ChangeTypeSLABreached,
}

func historyFor(tr lifecycle.Transition) *domain.TicketHistory {
	changeType, ok := changeTypeByAction[tr.Action]
	if !ok {
		changeType = domain.ChangeTypeStatus
	}
	oldValue := map[string]any{"status": tr.From}
	newValue := map[string]any{"status": tr.To}

	switch tr.Action {
	case lifecycle.ActionEscalate:
		oldValue["escalation_level"] = tr.OldLevel
		newValue["escalation_level"] = tr.NewLevel
		oldValue["assigned_to"] = tr.OldAssignee
		newValue["assigned_to"] = tr.NewAssignee
	case lifecycle.ActionReassign:
		oldValue["assigned_to"] = tr.OldAssignee
		newValue["assigned_to"] = tr.NewAssignee
	case lifecycle.ActionExtendTAT:
		oldValue["resolution_due_at"] = tr.OldDueAt
		newValue["resolution_due_at"] = tr.NewDueAt
	}
	if tr.Comment != nil {
		newValue["visibility"] = tr.Comment.Visibility
	}
	if tr.Acknowledged {
		newValue["acknowledged_at"] = tr.At
	}

	return &domain.TicketHistory{
		TicketID:      tr.TicketID,
		ChangedByRole: tr.Actor.Role,
		ChangedByID:   tr.Actor.UserID,
		ChangeType:    changeType,
		OldValue:      oldValue,
		NewValue:      newValue,
		CreatedAt:     tr.At,
	}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
