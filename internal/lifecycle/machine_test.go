package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sst-resolve/resolve-service/internal/domain"
	apperrors "github.com/sst-resolve/resolve-service/pkg/util/errorutil"
)

var (
	fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	student  = domain.Actor{UserID: "stu-1", Role: domain.RoleStudent}
	other    = domain.Actor{UserID: "stu-2", Role: domain.RoleStudent}
	admin    = domain.Actor{UserID: "adm-1", Role: domain.RoleAdmin}
	super    = domain.Actor{UserID: "sup-1", Role: domain.RoleSuperAdmin}
	member   = domain.Actor{UserID: "com-1", Role: domain.RoleCommittee}
)

func newMachine() *Machine {
	return NewMachine(func() time.Time { return fixedNow })
}

func newTicket(status domain.TicketStatus) *domain.Ticket {
	return &domain.Ticket{
		ID:        7,
		CreatedBy: student.UserID,
		Status:    status,
		CreatedAt: fixedNow.Add(-time.Hour),
		UpdatedAt: fixedNow.Add(-time.Hour),
	}
}

func TestAcknowledge_MovesOpenToInProgress(t *testing.T) {
	ticket := newTicket(domain.TicketStatusOpen)

	tr, err := newMachine().Acknowledge(ticket, admin, "  on it  ")
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	require.NotNil(t, ticket.AcknowledgedAt)
	assert.Equal(t, fixedNow, *ticket.AcknowledgedAt)
	assert.True(t, tr.Acknowledged)
	assert.True(t, tr.StatusChanged())
	require.NotNil(t, tr.Comment)
	assert.Equal(t, "on it", tr.Comment.Text)
	assert.Equal(t, domain.CommentPublic, tr.Comment.Visibility)
	assert.Len(t, ticket.Metadata.Comments, 1)
}

func TestAcknowledge_KeepsEscalatedStatus(t *testing.T) {
	ticket := newTicket(domain.TicketStatusEscalated)

	tr, err := newMachine().Acknowledge(ticket, admin, "")
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusEscalated, ticket.Status)
	assert.False(t, tr.StatusChanged())
	assert.Nil(t, tr.Comment)
}

func TestAcknowledge_Rejections(t *testing.T) {
	acked := newTicket(domain.TicketStatusInProgress)
	at := fixedNow.Add(-time.Minute)
	acked.AcknowledgedAt = &at

	cases := []struct {
		name   string
		ticket *domain.Ticket
		actor  domain.Actor
		code   string
	}{
		{"student", newTicket(domain.TicketStatusOpen), student, apperrors.CodeForbidden},
		{"committee", newTicket(domain.TicketStatusOpen), member, apperrors.CodeForbidden},
		{"anonymous", newTicket(domain.TicketStatusOpen), domain.Actor{}, apperrors.CodeUnauthorized},
		{"resolved", newTicket(domain.TicketStatusResolved), admin, apperrors.CodeInvalidState},
		{"twice", acked, admin, apperrors.CodeInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := *tc.ticket
			_, err := newMachine().Acknowledge(tc.ticket, tc.actor, "hello")
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tc.code), "got %v", err)
			assert.Equal(t, before.Status, tc.ticket.Status)
			assert.Empty(t, tc.ticket.Metadata.Comments)
		})
	}
}

func TestComment_AdminQuestionAwaitsStudent(t *testing.T) {
	ticket := newTicket(domain.TicketStatusInProgress)

	tr, err := newMachine().Comment(ticket, admin, "Which room?", domain.CommentQuestion)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusAwaitingStudent, ticket.Status)
	assert.Equal(t, domain.TicketStatusInProgress, tr.From)
	assert.Equal(t, domain.TicketStatusAwaitingStudent, tr.To)
	assert.True(t, tr.Acknowledged, "first admin comment acknowledges")
	assert.NotNil(t, ticket.AcknowledgedAt)
}

func TestComment_AdminOnOpenTicketStartsWork(t *testing.T) {
	ticket := newTicket(domain.TicketStatusOpen)

	_, err := newMachine().Comment(ticket, super, "looking", domain.CommentInternal)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	last, ok := ticket.Metadata.LastComment()
	require.True(t, ok)
	assert.Equal(t, domain.CommentInternal, last.Visibility)
}

func TestComment_StudentReplyReturnsToInProgress(t *testing.T) {
	ticket := newTicket(domain.TicketStatusAwaitingStudent)

	tr, err := newMachine().Comment(ticket, student, "Room 12", domain.CommentInternal)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	require.NotNil(t, tr.Comment)
	assert.Equal(t, domain.CommentPublic, tr.Comment.Visibility, "student comments are always public")
	assert.False(t, tr.Acknowledged)
}

func TestComment_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		status domain.TicketStatus
		actor  domain.Actor
		text   string
		code   string
	}{
		{"empty text", domain.TicketStatusOpen, admin, "   ", apperrors.CodeValidation},
		{"student not asked", domain.TicketStatusInProgress, student, "hi", apperrors.CodeInvalidState},
		{"other student", domain.TicketStatusAwaitingStudent, other, "hi", apperrors.CodeForbidden},
		{"committee", domain.TicketStatusOpen, member, "hi", apperrors.CodeForbidden},
		{"resolved", domain.TicketStatusResolved, admin, "hi", apperrors.CodeInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ticket := newTicket(tc.status)
			_, err := newMachine().Comment(ticket, tc.actor, tc.text, domain.CommentPublic)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tc.code), "got %v", err)
			assert.Equal(t, tc.status, ticket.Status)
			assert.Empty(t, ticket.Metadata.Comments)
		})
	}
}

func TestEscalate_RaisesLevelAndAssigns(t *testing.T) {
	ticket := newTicket(domain.TicketStatusInProgress)
	assignee := "warden-1"

	tr, err := newMachine().Escalate(ticket, student, 1, &assignee)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusEscalated, ticket.Status)
	assert.Equal(t, 1, ticket.EscalationLevel)
	assert.Equal(t, 0, tr.OldLevel)
	assert.Equal(t, 1, tr.NewLevel)
	require.NotNil(t, ticket.AssignedTo)
	assert.Equal(t, "warden-1", *ticket.AssignedTo)
	require.NotNil(t, ticket.LastEscalationAt)
	assert.Equal(t, fixedNow, *ticket.LastEscalationAt)
}

func TestEscalate_AlreadyEscalatedAgain(t *testing.T) {
	ticket := newTicket(domain.TicketStatusEscalated)
	ticket.EscalationLevel = 1
	current := "warden-1"
	ticket.AssignedTo = &current

	tr, err := newMachine().Escalate(ticket, admin, 2, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, ticket.EscalationLevel)
	assert.Equal(t, "warden-1", *ticket.AssignedTo, "nil assignee keeps the current one")
	assert.Equal(t, domain.TicketStatusEscalated, tr.To)
}

func TestEscalate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		status domain.TicketStatus
		level  int
		actor  domain.Actor
		code   string
	}{
		{"resolved before permission", domain.TicketStatusResolved, 1, member, apperrors.CodeInvalidState},
		{"committee", domain.TicketStatusOpen, 1, member, apperrors.CodeForbidden},
		{"other student", domain.TicketStatusOpen, 1, other, apperrors.CodeForbidden},
		{"level must increase", domain.TicketStatusOpen, 0, admin, apperrors.CodeInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ticket := newTicket(tc.status)
			_, err := newMachine().Escalate(ticket, tc.actor, tc.level, nil)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tc.code), "got %v", err)
			assert.Equal(t, 0, ticket.EscalationLevel)
		})
	}
}

func TestEscalate_CommitteeMessage(t *testing.T) {
	err := CheckEscalation(newTicket(domain.TicketStatusOpen), member)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "committee members cannot escalate")
}

func TestReassign(t *testing.T) {
	m := newMachine()
	ticket := newTicket(domain.TicketStatusInProgress)
	target := "adm-2"

	tr, err := m.Reassign(ticket, admin, &target)
	require.NoError(t, err)
	assert.True(t, tr.Changed)
	assert.Nil(t, tr.OldAssignee)
	assert.Equal(t, "adm-2", *ticket.AssignedTo)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)

	same := "adm-2"
	tr, err = m.Reassign(ticket, admin, &same)
	require.NoError(t, err)
	assert.False(t, tr.Changed)

	tr, err = m.Reassign(ticket, admin, nil)
	require.NoError(t, err)
	assert.True(t, tr.Changed)
	assert.Nil(t, ticket.AssignedTo)

	_, err = m.Reassign(ticket, student, &target)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestResolveReopenRate(t *testing.T) {
	m := newMachine()
	ticket := newTicket(domain.TicketStatusInProgress)

	_, err := m.Rate(ticket, student, 4, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState), "cannot rate an open ticket")

	tr, err := m.Resolve(ticket, admin)
	require.NoError(t, err)
	assert.True(t, tr.Changed)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	require.NotNil(t, ticket.ResolvedAt)

	tr, err = m.Resolve(ticket, admin)
	require.NoError(t, err)
	assert.False(t, tr.Changed, "resolving twice is a no-op")

	_, err = m.Rate(ticket, other, 4, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = m.Rate(ticket, student, 6, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = m.Rate(ticket, student, 5, " great ")
	require.NoError(t, err)
	require.NotNil(t, ticket.Rating)
	assert.Equal(t, 5, *ticket.Rating)
	assert.Equal(t, "great", *ticket.RatingFeedback)

	_, err = m.Rate(ticket, student, 3, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState), "second rating is rejected")

	tr, err = m.Reopen(ticket, student)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusReopened, ticket.Status)
	assert.Nil(t, ticket.ResolvedAt)
	assert.Equal(t, 1, ticket.ReopenCount)
	assert.Equal(t, domain.TicketStatusResolved, tr.From)

	_, err = m.Reopen(ticket, student)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
}

func TestResolve_StudentForbidden(t *testing.T) {
	ticket := newTicket(domain.TicketStatusOpen)
	_, err := newMachine().Resolve(ticket, student)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
}

func TestExtendTAT(t *testing.T) {
	ticket := newTicket(domain.TicketStatusInProgress)
	oldDue := fixedNow.Add(time.Hour)
	ticket.ResolutionDueAt = &oldDue

	tr, err := newMachine().ExtendTAT(ticket, admin, 48*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, fixedNow.Add(48*time.Hour), *ticket.ResolutionDueAt)
	assert.Equal(t, oldDue, *tr.OldDueAt)
	assert.Equal(t, 1, ticket.TATExtensions)

	_, err = newMachine().ExtendTAT(ticket, admin, 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	_, err = newMachine().ExtendTAT(ticket, student, time.Hour)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestMarkBreached_OnlyOnce(t *testing.T) {
	m := newMachine()
	ticket := newTicket(domain.TicketStatusInProgress)

	tr, ok := m.MarkBreached(ticket)
	require.True(t, ok)
	assert.Equal(t, domain.SystemActor(), tr.Actor)
	require.NotNil(t, ticket.SLABreachedAt)

	_, ok = m.MarkBreached(ticket)
	assert.False(t, ok)

	_, ok = m.MarkBreached(newTicket(domain.TicketStatusResolved))
	assert.False(t, ok)
}
