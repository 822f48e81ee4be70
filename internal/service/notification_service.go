package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/events"
	"github.com/sst-resolve/resolve-service/internal/notify"
	"github.com/sst-resolve/resolve-service/internal/repository"
)

// NotificationService turns ticket events into mail. Delivery failures are logged
// and swallowed: the ticket change they describe is already committed.
type NotificationService struct {
	dispatcher events.Dispatcher
	store      repository.Transactor
	mailer     notify.Mailer
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, store repository.Transactor, mailer notify.Mailer, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		store:      store,
		mailer:     mailer,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	events.SubscribeAll(n.dispatcher, n.handleEscalated, events.EventTicketEscalatedManual, events.EventTicketEscalatedAuto)
	n.dispatcher.Subscribe(events.EventTicketCommentAdded, n.handleCommentAdded)
	n.dispatcher.Subscribe(events.EventTicketReassigned, n.handleReassigned)
	events.SubscribeAll(n.dispatcher, n.handleCreatorUpdate,
		events.EventTicketResolved,
		events.EventTicketReopened,
		events.EventTicketStatusChanged,
	)
	n.dispatcher.Subscribe(events.EventTicketSLABreached, n.handleBreached)
	events.SubscribeAll(n.dispatcher, n.handleLogged,
		events.EventTicketCreated,
		events.EventTicketAcknowledged,
		events.EventTicketRated,
		events.EventTicketTATExtended,
	)
}

func (n *NotificationService) handleEscalated(ctx context.Context, event events.Event) error {
	payload, err := event.DecodePayload()
	if err != nil {
		return err
	}
	info := payload.Escalation
	if info == nil {
		info = &events.EscalationInfo{}
	}

	var recipients []string
	if info.Target != nil && info.Target.Contactable() {
		recipients = []string{info.Target.Email}
	} else {
		admins, err := n.store.Repositories().Users.ListByRole(ctx, domain.RoleSuperAdmin)
		if err != nil {
			return fmt.Errorf("list super admins: %w", err)
		}
		for i := range admins {
			if identity := admins[i].Identity(); identity.Contactable() {
				recipients = append(recipients, identity.Email)
			}
		}
	}

	subject := fmt.Sprintf("Ticket #%d escalated to %s", event.TicketID, info.EscalatedTo)
	if info.Urgent {
		subject = "[URGENT] " + subject
	}
	body := fmt.Sprintf("Ticket #%d moved from level %d to level %d (previous status %s).\n",
		event.TicketID, payload.OldLevel, payload.NewLevel, info.PreviousStatus)
	if payload.Reason != "" {
		body += "Reason: " + payload.Reason + "\n"
	}
	if event.Type == events.EventTicketEscalatedAuto {
		body += "This escalation was triggered automatically by an SLA breach.\n"
	}
	n.send(ctx, event, recipients, subject, body)

	if payload.OldStatus == payload.NewStatus {
		return nil
	}
	return n.mailCreator(ctx, event,
		fmt.Sprintf("Ticket #%d has been escalated", event.TicketID),
		fmt.Sprintf("Your ticket moved from %s to %s and was escalated to %s.\n",
			payload.OldStatus, payload.NewStatus, info.EscalatedTo))
}

func (n *NotificationService) handleCommentAdded(ctx context.Context, event events.Event) error {
	payload, err := event.DecodePayload()
	if err != nil {
		return err
	}
	if payload.Visibility != domain.CommentQuestion {
		n.logger.Debug("comment not notified",
			zap.Int64("ticket_id", event.TicketID),
			zap.String("visibility", string(payload.Visibility)))
		return nil
	}
	return n.mailCreator(ctx, event,
		fmt.Sprintf("Ticket #%d needs your response", event.TicketID),
		"An admin asked a question on your ticket:\n\n"+payload.CommentPreview+"\n")
}

func (n *NotificationService) handleReassigned(ctx context.Context, event events.Event) error {
	payload, err := event.DecodePayload()
	if err != nil {
		return err
	}
	if payload.NewAssignee == nil {
		return nil
	}
	assignee, err := n.store.Repositories().Users.GetByID(ctx, *payload.NewAssignee)
	if err != nil {
		n.logger.Warn("assignee lookup failed", zap.Int64("ticket_id", event.TicketID), zap.Error(err))
		return nil
	}
	n.send(ctx, event, []string{assignee.Email},
		fmt.Sprintf("Ticket #%d assigned to you", event.TicketID),
		fmt.Sprintf("Ticket #%d is now assigned to you.\n", event.TicketID))
	return nil
}

// handleCreatorUpdate mails the creator about a status they can see change. A move
// to awaiting-response is left to the question mail that caused it.
func (n *NotificationService) handleCreatorUpdate(ctx context.Context, event events.Event) error {
	payload, err := event.DecodePayload()
	if err != nil {
		return err
	}
	if event.Type == events.EventTicketStatusChanged &&
		(payload.OldStatus == payload.NewStatus || payload.NewStatus == domain.TicketStatusAwaitingStudent) {
		return nil
	}
	return n.mailCreator(ctx, event,
		fmt.Sprintf("Ticket #%d is now %s", event.TicketID, strings.ToLower(string(payload.NewStatus))),
		fmt.Sprintf("Your ticket moved from %s to %s.\n", payload.OldStatus, payload.NewStatus))
}

func (n *NotificationService) handleBreached(_ context.Context, event events.Event) error {
	payload, err := event.DecodePayload()
	if err != nil {
		return err
	}
	n.logger.Warn("sla breached",
		zap.Int64("ticket_id", event.TicketID),
		zap.String("deadline", payload.Deadline),
		zap.Timep("due_at", payload.DueAt))
	return nil
}

func (n *NotificationService) handleLogged(_ context.Context, event events.Event) error {
	n.logger.Info("ticket event",
		zap.String("event_type", string(event.Type)),
		zap.Int64("ticket_id", event.TicketID),
		zap.String("actor_id", event.Actor.UserID))
	return nil
}

func (n *NotificationService) mailCreator(ctx context.Context, event events.Event, subject, body string) error {
	repos := n.store.Repositories()
	ticket, err := repos.Tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		return fmt.Errorf("load ticket %d: %w", event.TicketID, err)
	}
	if ticket.CreatedBy == event.Actor.UserID {
		return nil
	}
	creator, err := repos.Users.GetByID(ctx, ticket.CreatedBy)
	if err != nil {
		n.logger.Warn("creator lookup failed", zap.Int64("ticket_id", event.TicketID), zap.Error(err))
		return nil
	}
	n.sendThreaded(ctx, event, []string{creator.Email}, subject, body, ticket.Metadata.Threads.EmailMessageID)
	return nil
}

func (n *NotificationService) send(ctx context.Context, event events.Event, to []string, subject, body string) {
	n.sendThreaded(ctx, event, to, subject, body, "")
}

func (n *NotificationService) sendThreaded(ctx context.Context, event events.Event, to []string, subject, body, inReplyTo string) {
	recipients := make([]string, 0, len(to))
	for _, addr := range to {
		if strings.TrimSpace(addr) != "" {
			recipients = append(recipients, addr)
		}
	}
	if n.mailer == nil || len(recipients) == 0 {
		n.logger.Debug("no mail recipients",
			zap.Int64("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)))
		return
	}
	err := n.mailer.Send(ctx, notify.Message{
		To:        recipients,
		Subject:   subject,
		PlainBody: body,
		InReplyTo: inReplyTo,
	})
	if err != nil {
		n.logger.Warn("notification mail failed",
			zap.Int64("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
