package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sst-resolve/resolve-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket.created"
	EventTicketAcknowledged    EventType = "ticket.acknowledged"
	EventTicketCommentAdded    EventType = "ticket.comment_added"
	EventTicketStatusChanged   EventType = "ticket.status_changed"
	EventTicketEscalatedManual EventType = "ticket.escalated.manual"
	EventTicketEscalatedAuto   EventType = "ticket.escalated.auto"
	EventTicketReassigned      EventType = "ticket.reassigned"
	EventTicketResolved        EventType = "ticket.resolved"
	EventTicketReopened        EventType = "ticket.reopened"
	EventTicketRated           EventType = "ticket.rated"
	EventTicketTATExtended     EventType = "ticket.tat_extended"
	EventTicketSLABreached     EventType = "ticket.sla_breached"
)

// AllEventTypes lists every type a handler may subscribe to.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketAcknowledged,
	EventTicketCommentAdded,
	EventTicketStatusChanged,
	EventTicketEscalatedManual,
	EventTicketEscalatedAuto,
	EventTicketReassigned,
	EventTicketResolved,
	EventTicketReopened,
	EventTicketRated,
	EventTicketTATExtended,
	EventTicketSLABreached,
}

// IsEscalation reports whether the type is a manual or automatic escalation.
func (t EventType) IsEscalation() bool {
	return t == EventTicketEscalatedManual || t == EventTicketEscalatedAuto
}

// MaxReasonLength caps free text copied into events.
const MaxReasonLength = 500

// Event represents a domain event emitted by services.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	TicketID  int64           `json:"ticket_id"`
	Actor     domain.Actor    `json:"actor"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// FromOutbox rebuilds the event persisted in an outbox row.
func FromOutbox(record domain.OutboxEvent) Event {
	return Event{
		ID:        record.ID,
		Type:      EventType(record.EventType),
		TicketID:  record.TicketID,
		Actor:     record.Actor,
		Timestamp: record.CreatedAt,
		Payload:   record.Payload,
	}
}

// DecodePayload unmarshals the ticket payload.
func (e Event) DecodePayload() (TicketEventPayload, error) {
	var payload TicketEventPayload
	if len(e.Payload) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return payload, nil
}

// TicketEventPayload is shared by every ticket event; unused fields are omitted.
type TicketEventPayload struct {
	CreatedBy      string                   `json:"created_by,omitempty"`
	CategoryID     int64                    `json:"category_id,omitempty"`
	OldStatus      domain.TicketStatus      `json:"old_status,omitempty"`
	NewStatus      domain.TicketStatus      `json:"new_status,omitempty"`
	OldLevel       int                      `json:"old_level,omitempty"`
	NewLevel       int                      `json:"new_level,omitempty"`
	OldAssignee    *string                  `json:"old_assignee,omitempty"`
	NewAssignee    *string                  `json:"new_assignee,omitempty"`
	Reason         string                   `json:"reason,omitempty"`
	CommentPreview string                   `json:"comment_preview,omitempty"`
	Visibility     domain.CommentVisibility `json:"visibility,omitempty"`
	Escalation     *EscalationInfo          `json:"escalation,omitempty"`
	Rating         *int                     `json:"rating,omitempty"`
	DueAt          *time.Time               `json:"due_at,omitempty"`
	Deadline       string                   `json:"deadline,omitempty"`
}

// EscalationInfo describes where an escalation landed.
type EscalationInfo struct {
	EscalatedTo    string              `json:"escalated_to"`
	Urgent         bool                `json:"urgent"`
	SuperAdmin     bool                `json:"super_admin"`
	Target         *domain.Identity    `json:"target,omitempty"`
	PreviousStatus domain.TicketStatus `json:"previous_status"`
}

// Truncate shortens text to MaxReasonLength runes.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxReasonLength {
		return text
	}
	return string(runes[:MaxReasonLength])
}
