package lifecycle

import (
	"strings"
	"time"

	"github.com/sst-resolve/resolve-service/internal/domain"
	apperrors "github.com/sst-resolve/resolve-service/pkg/util/errorutil"
)

// Transition records one applied operation for the caller to persist and publish.
type Transition struct {
	Action       Action
	TicketID     int64
	Actor        domain.Actor
	From         domain.TicketStatus
	To           domain.TicketStatus
	At           time.Time
	Changed      bool
	Acknowledged bool
	Comment      *domain.Comment
	OldLevel     int
	NewLevel     int
	OldAssignee  *string
	NewAssignee  *string
	OldDueAt     *time.Time
	NewDueAt     *time.Time
}

// StatusChanged reports whether the ticket moved to a different status.
func (t Transition) StatusChanged() bool {
	return t.From != t.To
}

// Machine validates and applies ticket transitions. It never touches storage.
type Machine struct {
	now func() time.Time
}

// NewMachine builds a machine using now as its clock; nil means wall-clock UTC.
func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Machine{now: now}
}

func (m *Machine) begin(action Action, t *domain.Ticket, actor domain.Actor) Transition {
	return Transition{
		Action:   action,
		TicketID: t.ID,
		Actor:    actor,
		From:     t.Status,
		To:       t.Status,
		At:       m.now(),
		Changed:  true,
		OldLevel: t.EscalationLevel,
		NewLevel: t.EscalationLevel,
	}
}

func (m *Machine) moveTo(t *domain.Ticket, tr *Transition, to domain.TicketStatus) error {
	if t.Status == to && to != domain.TicketStatusEscalated {
		return nil
	}
	if !CanTransition(t.Status, to) {
		return apperrors.NewInvalidState("transition not allowed", map[string]any{
			"from": string(t.Status),
			"to":   string(to),
		})
	}
	t.Status = to
	tr.To = to
	return nil
}

func (m *Machine) finish(t *domain.Ticket, tr *Transition) {
	t.UpdatedAt = tr.At
}

func requireActive(t *domain.Ticket, message string) error {
	if t.Status.IsTerminal() {
		return apperrors.NewInvalidState(message, map[string]any{"status": string(t.Status)})
	}
	return nil
}

// Acknowledge marks first staff contact. It can happen once per ticket.
func (m *Machine) Acknowledge(t *domain.Ticket, actor domain.Actor, message string) (Transition, error) {
	if err := Authorize(ActionAcknowledge, actor, t); err != nil {
		return Transition{}, err
	}
	if err := requireActive(t, "cannot acknowledge a resolved ticket"); err != nil {
		return Transition{}, err
	}
	if t.AcknowledgedAt != nil {
		return Transition{}, apperrors.NewInvalidState("ticket already acknowledged", map[string]any{
			"acknowledged_at": t.AcknowledgedAt.Format(time.RFC3339),
		})
	}

	tr := m.begin(ActionAcknowledge, t, actor)
	if t.Status == domain.TicketStatusOpen || t.Status == domain.TicketStatusReopened {
		if err := m.moveTo(t, &tr, domain.TicketStatusInProgress); err != nil {
			return Transition{}, err
		}
	}
	at := tr.At
	t.AcknowledgedAt = &at
	tr.Acknowledged = true
	if text := strings.TrimSpace(message); text != "" {
		c := domain.Comment{
			Text:       text,
			AuthorID:   actor.UserID,
			AuthorRole: actor.Role,
			Visibility: domain.CommentPublic,
			CreatedAt:  at,
		}
		t.Metadata.AppendComment(c)
		tr.Comment = &c
	}
	m.finish(t, &tr)
	return tr, nil
}

// Comment appends to the conversation and applies the status rules tied to who is speaking.
func (m *Machine) Comment(t *domain.Ticket, actor domain.Actor, text string, visibility domain.CommentVisibility) (Transition, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Transition{}, apperrors.NewValidationError("comment text is required", nil)
	}
	if err := Authorize(ActionComment, actor, t); err != nil {
		return Transition{}, err
	}
	if err := requireActive(t, "cannot comment on a resolved ticket, reopen it first"); err != nil {
		return Transition{}, err
	}

	tr := m.begin(ActionComment, t, actor)
	if actor.Role.IsAdminTier() {
		switch {
		case visibility == domain.CommentQuestion:
			if t.Status != domain.TicketStatusAwaitingStudent {
				if err := m.moveTo(t, &tr, domain.TicketStatusAwaitingStudent); err != nil {
					return Transition{}, err
				}
			}
		case t.Status == domain.TicketStatusOpen || t.Status == domain.TicketStatusReopened:
			if err := m.moveTo(t, &tr, domain.TicketStatusInProgress); err != nil {
				return Transition{}, err
			}
		}
		if t.AcknowledgedAt == nil {
			at := tr.At
			t.AcknowledgedAt = &at
			tr.Acknowledged = true
		}
	} else {
		if t.Status != domain.TicketStatusAwaitingStudent {
			return Transition{}, apperrors.NewInvalidState("you can only reply when the admin has asked a question", map[string]any{
				"status": string(t.Status),
			})
		}
		visibility = domain.CommentPublic
		if err := m.moveTo(t, &tr, domain.TicketStatusInProgress); err != nil {
			return Transition{}, err
		}
	}

	c := domain.Comment{
		Text:       text,
		AuthorID:   actor.UserID,
		AuthorRole: actor.Role,
		Visibility: visibility,
		CreatedAt:  tr.At,
	}
	t.Metadata.AppendComment(c)
	tr.Comment = &c
	m.finish(t, &tr)
	return tr, nil
}

// CheckEscalation runs the escalation preconditions without mutating anything.
func CheckEscalation(t *domain.Ticket, actor domain.Actor) error {
	if actor.UserID == "" || actor.Role == "" {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := requireActive(t, "cannot escalate a resolved ticket"); err != nil {
		return err
	}
	return Authorize(ActionEscalate, actor, t)
}

// CheckReassign runs the reassignment preconditions without mutating anything.
func CheckReassign(t *domain.Ticket, actor domain.Actor) error {
	if err := Authorize(ActionReassign, actor, t); err != nil {
		return err
	}
	return requireActive(t, "cannot reassign a resolved ticket")
}

// Escalate moves the ticket to ESCALATED at newLevel. A nil assignee keeps the current one.
func (m *Machine) Escalate(t *domain.Ticket, actor domain.Actor, newLevel int, assignee *string) (Transition, error) {
	if err := CheckEscalation(t, actor); err != nil {
		return Transition{}, err
	}
	if newLevel <= t.EscalationLevel {
		return Transition{}, apperrors.NewInvalidState("escalation level must increase", map[string]any{
			"current_level": t.EscalationLevel,
			"new_level":     newLevel,
		})
	}

	tr := m.begin(ActionEscalate, t, actor)
	if err := m.moveTo(t, &tr, domain.TicketStatusEscalated); err != nil {
		return Transition{}, err
	}
	tr.OldAssignee = t.AssignedTo
	if assignee != nil {
		id := *assignee
		t.AssignedTo = &id
	}
	tr.NewAssignee = t.AssignedTo
	t.EscalationLevel = newLevel
	tr.NewLevel = newLevel
	at := tr.At
	t.LastEscalationAt = &at
	m.finish(t, &tr)
	return tr, nil
}

// Reassign changes the assignee; nil unassigns. Status is untouched.
func (m *Machine) Reassign(t *domain.Ticket, actor domain.Actor, assignee *string) (Transition, error) {
	if err := CheckReassign(t, actor); err != nil {
		return Transition{}, err
	}

	tr := m.begin(ActionReassign, t, actor)
	tr.OldAssignee = t.AssignedTo
	if sameAssignee(t.AssignedTo, assignee) {
		tr.Changed = false
		tr.NewAssignee = t.AssignedTo
		return tr, nil
	}
	if assignee == nil {
		t.AssignedTo = nil
	} else {
		id := *assignee
		t.AssignedTo = &id
	}
	tr.NewAssignee = t.AssignedTo
	m.finish(t, &tr)
	return tr, nil
}

// Resolve closes the ticket. Resolving an already resolved ticket is a no-op.
func (m *Machine) Resolve(t *domain.Ticket, actor domain.Actor) (Transition, error) {
	if err := Authorize(ActionResolve, actor, t); err != nil {
		return Transition{}, err
	}
	tr := m.begin(ActionResolve, t, actor)
	if t.Status == domain.TicketStatusResolved {
		tr.Changed = false
		return tr, nil
	}
	if err := m.moveTo(t, &tr, domain.TicketStatusResolved); err != nil {
		return Transition{}, err
	}
	at := tr.At
	t.ResolvedAt = &at
	m.finish(t, &tr)
	return tr, nil
}

// Reopen returns a resolved ticket to the active lifecycle.
func (m *Machine) Reopen(t *domain.Ticket, actor domain.Actor) (Transition, error) {
	if err := Authorize(ActionReopen, actor, t); err != nil {
		return Transition{}, err
	}
	if t.Status != domain.TicketStatusResolved {
		return Transition{}, apperrors.NewInvalidState("only resolved tickets can be reopened", map[string]any{
			"status": string(t.Status),
		})
	}
	tr := m.begin(ActionReopen, t, actor)
	if err := m.moveTo(t, &tr, domain.TicketStatusReopened); err != nil {
		return Transition{}, err
	}
	at := tr.At
	t.ResolvedAt = nil
	t.ReopenedAt = &at
	t.ReopenCount++
	m.finish(t, &tr)
	return tr, nil
}

// Rate stores the creator's satisfaction score for a resolved ticket.
func (m *Machine) Rate(t *domain.Ticket, actor domain.Actor, score int, feedback string) (Transition, error) {
	if score < 1 || score > 5 {
		return Transition{}, apperrors.NewValidationError("rating must be between 1 and 5", map[string]any{"score": score})
	}
	if err := Authorize(ActionRate, actor, t); err != nil {
		return Transition{}, err
	}
	if t.Status != domain.TicketStatusResolved {
		return Transition{}, apperrors.NewInvalidState("only resolved tickets can be rated", map[string]any{
			"status": string(t.Status),
		})
	}
	if t.Rating != nil {
		return Transition{}, apperrors.NewInvalidState("ticket already rated", map[string]any{"rating": *t.Rating})
	}

	tr := m.begin(ActionRate, t, actor)
	at := tr.At
	s := score
	t.Rating = &s
	t.RatedAt = &at
	if fb := strings.TrimSpace(feedback); fb != "" {
		t.RatingFeedback = &fb
	}
	m.finish(t, &tr)
	return tr, nil
}

// ExtendTAT pushes the resolution deadline to now+extension.
func (m *Machine) ExtendTAT(t *domain.Ticket, actor domain.Actor, extension time.Duration) (Transition, error) {
	if err := Authorize(ActionExtendTAT, actor, t); err != nil {
		return Transition{}, err
	}
	if err := requireActive(t, "cannot extend the TAT of a resolved ticket"); err != nil {
		return Transition{}, err
	}
	if extension <= 0 {
		return Transition{}, apperrors.NewValidationError("extension must be positive", nil)
	}

	tr := m.begin(ActionExtendTAT, t, actor)
	tr.OldDueAt = domain.CloneTime(t.ResolutionDueAt)
	due := tr.At.Add(extension)
	t.ResolutionDueAt = &due
	tr.NewDueAt = domain.CloneTime(&due)
	t.TATExtensions++
	m.finish(t, &tr)
	return tr, nil
}

// MarkBreached stamps the first SLA miss. It returns false when already stamped.
func (m *Machine) MarkBreached(t *domain.Ticket) (Transition, bool) {
	actor := domain.SystemActor()
	tr := m.begin(ActionSLABreach, t, actor)
	if t.SLABreachedAt != nil || t.Status.IsTerminal() {
		tr.Changed = false
		return tr, false
	}
	at := tr.At
	t.SLABreachedAt = &at
	m.finish(t, &tr)
	return tr, true
}

// Now exposes the machine clock to callers that need consistent timestamps.
func (m *Machine) Now() time.Time {
	return m.now()
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
