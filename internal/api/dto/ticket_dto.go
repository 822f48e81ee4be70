package dto

import (
	"encoding/json"
	"time"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/service"
	"github.com/sst-resolve/resolve-service/internal/sla"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	CategoryID       int64           `json:"category_id" validate:"required,gt=0"`
	SubcategoryID    *int64          `json:"subcategory_id" validate:"omitempty,gt=0"`
	SubSubcategoryID *int64          `json:"sub_subcategory_id" validate:"omitempty,gt=0"`
	ScopeID          *int64          `json:"scope_id" validate:"omitempty,gt=0"`
	Description      string          `json:"description" validate:"required,max=10000"`
	DynamicFields    json.RawMessage `json:"dynamic_fields"`
}

// AcknowledgeRequest payload.
type AcknowledgeRequest struct {
	Message string `json:"message" validate:"max=5000"`
}

// CommentRequest payload.
type CommentRequest struct {
	Text       string `json:"text" validate:"required,max=5000"`
	Visibility string `json:"visibility" validate:"omitempty,oneof=PUBLIC INTERNAL QUESTION public internal question"`
}

// EscalateRequest payload.
type EscalateRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// ReassignRequest payload. A null assignee_id unassigns the ticket.
type ReassignRequest struct {
	AssigneeID *string `json:"assignee_id" validate:"omitempty,min=1,max=128"`
}

// RateRequest payload.
type RateRequest struct {
	Score    int    `json:"score" validate:"required,gte=1,lte=5"`
	Feedback string `json:"feedback" validate:"max=2000"`
}

// ExtendTATRequest payload; duration is text such as "2 days".
type ExtendTATRequest struct {
	Duration string `json:"duration" validate:"required,max=64"`
}

// CommentResponse is one conversation entry.
type CommentResponse struct {
	Text       string                   `json:"text"`
	AuthorID   string                   `json:"author_id"`
	AuthorRole domain.Role              `json:"author_role"`
	Visibility domain.CommentVisibility `json:"visibility"`
	CreatedAt  time.Time                `json:"created_at"`
}

// TicketResponse is the ticket representation returned by every ticket route.
type TicketResponse struct {
	ID                   int64               `json:"id"`
	CreatedBy            string              `json:"created_by"`
	CategoryID           int64               `json:"category_id"`
	SubcategoryID        *int64              `json:"subcategory_id"`
	SubSubcategoryID     *int64              `json:"sub_subcategory_id"`
	ScopeID              *int64              `json:"scope_id"`
	AssignedTo           *string             `json:"assigned_to"`
	Status               domain.TicketStatus `json:"status"`
	Description          string              `json:"description"`
	EscalationLevel      int                 `json:"escalation_level"`
	AcknowledgementDueAt *time.Time          `json:"acknowledgement_due_at"`
	ResolutionDueAt      *time.Time          `json:"resolution_due_at"`
	AcknowledgedAt       *time.Time          `json:"acknowledged_at"`
	ResolvedAt           *time.Time          `json:"resolved_at"`
	LastEscalationAt     *time.Time          `json:"last_escalation_at"`
	SLABreachedAt        *time.Time          `json:"sla_breached_at"`
	TATExtensions        int                 `json:"tat_extensions"`
	ReopenCount          int                 `json:"reopen_count"`
	Rating               *int                `json:"rating"`
	RatingFeedback       *string             `json:"rating_feedback,omitempty"`
	Comments             []CommentResponse   `json:"comments"`
	DynamicFields        json.RawMessage     `json:"dynamic_fields,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// HistoryResponse is one audit trail entry.
type HistoryResponse struct {
	ID            int64                   `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByID   string                  `json:"changed_by_id"`
	ChangedByRole domain.Role             `json:"changed_by_role"`
	OldValue      map[string]any          `json:"old_value,omitempty"`
	NewValue      map[string]any          `json:"new_value,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// TicketDetailResponse adds the SLA view and history to a ticket.
type TicketDetailResponse struct {
	TicketResponse
	SLA     sla.View          `json:"sla"`
	History []HistoryResponse `json:"history,omitempty"`
}

// EscalationResponse reports where an escalation landed.
type EscalationResponse struct {
	Ticket      TicketResponse      `json:"ticket"`
	NewLevel    int                 `json:"new_level"`
	NewAssignee *domain.Identity    `json:"new_assignee"`
	NewStatus   domain.TicketStatus `json:"new_status"`
	EscalatedTo string              `json:"escalated_to"`
	Urgent      bool                `json:"urgent"`
}

// NewTicketResponse maps a ticket as seen by viewer. Internal notes are dropped
// for roles that may not read them.
func NewTicketResponse(t *domain.Ticket, viewer domain.Role) TicketResponse {
	visible := t.Metadata.VisibleComments(viewer.SeesInternal())
	comments := make([]CommentResponse, 0, len(visible))
	for _, c := range visible {
		comments = append(comments, CommentResponse{
			Text:       c.Text,
			AuthorID:   c.AuthorID,
			AuthorRole: c.AuthorRole,
			Visibility: c.Visibility,
			CreatedAt:  c.CreatedAt,
		})
	}
	return TicketResponse{
		ID:                   t.ID,
		CreatedBy:            t.CreatedBy,
		CategoryID:           t.CategoryID,
		SubcategoryID:        t.SubcategoryID,
		SubSubcategoryID:     t.SubSubcategoryID,
		ScopeID:              t.ScopeID,
		AssignedTo:           t.AssignedTo,
		Status:               t.Status,
		Description:          t.Description,
		EscalationLevel:      t.EscalationLevel,
		AcknowledgementDueAt: t.AcknowledgementDueAt,
		ResolutionDueAt:      t.ResolutionDueAt,
		AcknowledgedAt:       t.AcknowledgedAt,
		ResolvedAt:           t.ResolvedAt,
		LastEscalationAt:     t.LastEscalationAt,
		SLABreachedAt:        t.SLABreachedAt,
		TATExtensions:        t.TATExtensions,
		ReopenCount:          t.ReopenCount,
		Rating:               t.Rating,
		RatingFeedback:       t.RatingFeedback,
		Comments:             comments,
		DynamicFields:        t.Metadata.DynamicFields,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

// NewTicketDetailResponse maps the service view of a ticket.
func NewTicketDetailResponse(d *service.TicketDetails, viewer domain.Role) TicketDetailResponse {
	resp := TicketDetailResponse{
		TicketResponse: NewTicketResponse(d.Ticket, viewer),
		SLA:            d.SLA,
	}
	for _, h := range d.History {
		resp.History = append(resp.History, HistoryResponse{
			ID:            h.ID,
			ChangeType:    h.ChangeType,
			ChangedByID:   h.ChangedByID,
			ChangedByRole: h.ChangedByRole,
			OldValue:      h.OldValue,
			NewValue:      h.NewValue,
			CreatedAt:     h.CreatedAt,
		})
	}
	return resp
}

// NewEscalationResponse maps an escalation result.
func NewEscalationResponse(r *service.EscalationResult, viewer domain.Role) EscalationResponse {
	return EscalationResponse{
		Ticket:      NewTicketResponse(r.Ticket, viewer),
		NewLevel:    r.NewLevel,
		NewAssignee: r.NewAssignee,
		NewStatus:   r.NewStatus,
		EscalatedTo: r.EscalatedTo,
		Urgent:      r.Urgent,
	}
}
