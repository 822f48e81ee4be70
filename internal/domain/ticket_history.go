package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeCreated      TicketChangeType = "CREATED"
	ChangeTypeStatus       TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAcknowledged TicketChangeType = "ACKNOWLEDGED"
	ChangeTypeComment      TicketChangeType = "COMMENT_ADDED"
	ChangeTypeAssignee     TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypeEscalation   TicketChangeType = "ESCALATION"
	ChangeTypeResolved     TicketChangeType = "RESOLVED"
	ChangeTypeReopened     TicketChangeType = "REOPENED"
	ChangeTypeRated        TicketChangeType = "RATED"
	ChangeTypeTATExtended  TicketChangeType = "TAT_EXTENDED"
	ChangeTypeSLABreached  TicketChangeType = "SLA_BREACHED"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID            int64
	TicketID      int64
	ChangedByRole Role
	ChangedByID   string
	ChangeType    TicketChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
