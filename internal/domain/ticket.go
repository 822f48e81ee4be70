package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "OPEN"
	TicketStatusInProgress      TicketStatus = "IN_PROGRESS"
	TicketStatusAwaitingStudent TicketStatus = "AWAITING_STUDENT_RESPONSE"
	TicketStatusReopened        TicketStatus = "REOPENED"
	TicketStatusEscalated       TicketStatus = "ESCALATED"
	TicketStatusResolved        TicketStatus = "RESOLVED"
)

// AllTicketStatuses lists every status in display order.
var AllTicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusAwaitingStudent,
	TicketStatusReopened,
	TicketStatusEscalated,
	TicketStatusResolved,
}

// IsTerminal reports whether the status ends the active lifecycle.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, known := range AllTicketStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseTicketStatus accepts stored codes and the "closed" display alias.
func ParseTicketStatus(raw string) (TicketStatus, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "CLOSED" {
		return TicketStatusResolved, true
	}
	status := TicketStatus(normalized)
	return status, status.Valid()
}

// Ticket is the aggregate for student requests.
type Ticket struct {
	ID                   int64
	CreatedBy            string
	CategoryID           int64
	SubcategoryID        *int64
	SubSubcategoryID     *int64
	ScopeID              *int64
	AssignedTo           *string
	Status               TicketStatus
	Description          string
	EscalationLevel      int
	AcknowledgementDueAt *time.Time
	ResolutionDueAt      *time.Time
	AcknowledgedAt       *time.Time
	ResolvedAt           *time.Time
	LastEscalationAt     *time.Time
	SLABreachedAt        *time.Time
	TATExtensions        int
	ReopenCount          int
	ReopenedAt           *time.Time
	Rating               *int
	RatingFeedback       *string
	RatedAt              *time.Time
	Metadata             Metadata
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsCreator reports whether userID filed the ticket.
func (t *Ticket) IsCreator(userID string) bool {
	return userID != "" && t.CreatedBy == userID
}

// Clone returns a deep copy safe to mutate independently.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	cp.SubcategoryID = cloneInt64(t.SubcategoryID)
	cp.SubSubcategoryID = cloneInt64(t.SubSubcategoryID)
	cp.ScopeID = cloneInt64(t.ScopeID)
	cp.AssignedTo = cloneString(t.AssignedTo)
	cp.AcknowledgementDueAt = CloneTime(t.AcknowledgementDueAt)
	cp.ResolutionDueAt = CloneTime(t.ResolutionDueAt)
	cp.AcknowledgedAt = CloneTime(t.AcknowledgedAt)
	cp.ResolvedAt = CloneTime(t.ResolvedAt)
	cp.LastEscalationAt = CloneTime(t.LastEscalationAt)
	cp.SLABreachedAt = CloneTime(t.SLABreachedAt)
	cp.ReopenedAt = CloneTime(t.ReopenedAt)
	cp.RatedAt = CloneTime(t.RatedAt)
	cp.RatingFeedback = cloneString(t.RatingFeedback)
	if t.Rating != nil {
		v := *t.Rating
		cp.Rating = &v
	}
	cp.Metadata = t.Metadata.Clone()
	return &cp
}

// CloneTime copies a nullable timestamp.
func CloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
