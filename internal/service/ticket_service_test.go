package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/events"
	apperrors "github.com/sst-resolve/resolve-service/pkg/util/errorutil"
)

func TestCreateTicket_StampsDeadlinesAndRecords(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t)

	assert.Equal(t, int64(1), ticket.ID)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	require.NotNil(t, ticket.AcknowledgementDueAt)
	require.NotNil(t, ticket.ResolutionDueAt)
	assert.Equal(t, f.now.Add(4*time.Hour), *ticket.AcknowledgementDueAt)
	assert.Equal(t, f.now.Add(48*time.Hour), *ticket.ResolutionDueAt)

	history := f.history(t, ticket.ID)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeTypeCreated, history[0].ChangeType)
	assert.Equal(t, []events.EventType{events.EventTicketCreated}, f.eventTypes(t, ticket.ID))

	payload := decode(t, f.outbox(t, ticket.ID)[0])
	assert.Equal(t, "stu-1", payload.CreatedBy)
	assert.Equal(t, f.hostel, payload.CategoryID)
}

func TestCreateTicket_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherCategory := &domain.Category{Name: "Mess", Slug: "mess", IsActive: true}
	require.NoError(t, f.store.Repositories().Categories.UpsertCategory(ctx, otherCategory))
	blockA := f.blockA

	cases := []struct {
		name  string
		actor domain.Actor
		input TicketCreateInput
		code  string
	}{
		{"anonymous", domain.Actor{}, TicketCreateInput{CategoryID: f.hostel, Description: "x"}, apperrors.CodeUnauthorized},
		{"blank description", student, TicketCreateInput{CategoryID: f.hostel, Description: "   "}, apperrors.CodeValidation},
		{"missing category", student, TicketCreateInput{Description: "x"}, apperrors.CodeValidation},
		{"unknown category", student, TicketCreateInput{CategoryID: 99, Description: "x"}, apperrors.CodeNotFound},
		{"scope from another category", student, TicketCreateInput{CategoryID: otherCategory.ID, ScopeID: &blockA, Description: "x"}, apperrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.tickets.CreateTicket(ctx, tc.actor, tc.input)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tc.code), "got %v", err)
		})
	}
	_, err := f.store.Repositories().Tickets.GetByID(ctx, 1)
	assert.Error(t, err, "no ticket is stored on rejection")
}

func TestAcknowledge_EmitsStatusChange(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t)
	f.now = f.now.Add(time.Hour)

	updated, err := f.tickets.Acknowledge(context.Background(), admin, ticket.ID, "On it")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	require.NotNil(t, updated.AcknowledgedAt)
	assert.Equal(t, f.now, *updated.AcknowledgedAt)
	require.Len(t, updated.Metadata.Comments, 1)

	assert.Equal(t, []events.EventType{
		events.EventTicketCreated,
		events.EventTicketAcknowledged,
		events.EventTicketStatusChanged,
	}, f.eventTypes(t, ticket.ID))
	assert.Len(t, f.history(t, ticket.ID), 2)

	_, err = f.tickets.Acknowledge(context.Background(), admin, ticket.ID, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
}

func TestRejectedTransitionWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.create(t)

	_, err := f.tickets.Acknowledge(ctx, student, ticket.ID, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = f.tickets.AddComment(ctx, student, ticket.ID, "hello?", domain.CommentPublic)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))

	_, err = f.tickets.Resolve(ctx, admin, 42)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	stored, err := f.store.Repositories().Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
	assert.Empty(t, stored.Metadata.Comments)
	assert.Len(t, f.history(t, ticket.ID), 1)
	assert.Len(t, f.outbox(t, ticket.ID), 1)
}

func TestConversationFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.create(t)

	updated, err := f.tickets.AddComment(ctx, admin, ticket.ID, "Which floor?", domain.CommentQuestion)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAwaitingStudent, updated.Status)
	assert.NotNil(t, updated.AcknowledgedAt, "any admin comment acknowledges")

	_, err = f.tickets.AddComment(ctx, other, ticket.ID, "not mine", domain.CommentPublic)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	updated, err = f.tickets.AddComment(ctx, student, ticket.ID, "Second floor", domain.CommentInternal)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	last, ok := updated.Metadata.LastComment()
	require.True(t, ok)
	assert.Equal(t, domain.CommentPublic, last.Visibility, "student comments are always public")

	_, err = f.tickets.AddComment(ctx, admin, ticket.ID, "plumber booked", domain.CommentInternal)
	require.NoError(t, err)

	studentView, err := f.tickets.GetTicket(ctx, student, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, studentView.Ticket.Metadata.Comments, 2)
	assert.Nil(t, studentView.History)

	staffView, err := f.tickets.GetTicket(ctx, admin, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, staffView.Ticket.Metadata.Comments, 3)
	assert.Len(t, staffView.History, 4)

	_, err = f.tickets.GetTicket(ctx, other, ticket.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestResolveRateReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.create(t)

	_, err := f.tickets.Rate(ctx, student, ticket.ID, 5, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))

	resolved, err := f.tickets.Resolve(ctx, admin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, resolved.Status)
	eventsAfterResolve := len(f.outbox(t, ticket.ID))

	_, err = f.tickets.Resolve(ctx, admin, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, f.outbox(t, ticket.ID), eventsAfterResolve, "second resolve is a no-op")

	_, err = f.tickets.Rate(ctx, student, ticket.ID, 6, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	rated, err := f.tickets.Rate(ctx, student, ticket.ID, 4, " quick fix ")
	require.NoError(t, err)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 4, *rated.Rating)
	require.NotNil(t, rated.RatingFeedback)
	assert.Equal(t, "quick fix", *rated.RatingFeedback)

	rows := f.outbox(t, ticket.ID)
	ratedPayload := decode(t, rows[len(rows)-1])
	require.NotNil(t, ratedPayload.Rating)
	assert.Equal(t, 4, *ratedPayload.Rating)

	_, err = f.tickets.Rate(ctx, student, ticket.ID, 2, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))

	reopened, err := f.tickets.Reopen(ctx, student, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusReopened, reopened.Status)
	assert.Equal(t, 1, reopened.ReopenCount)
	assert.Nil(t, reopened.ResolvedAt)
}

func TestExtendTAT(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.create(t)
	f.now = f.now.Add(10 * time.Hour)

	_, err := f.tickets.ExtendTAT(ctx, admin, ticket.ID, " ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.tickets.ExtendTAT(ctx, student, ticket.ID, "2 days")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	extended, err := f.tickets.ExtendTAT(ctx, admin, ticket.ID, "2 days")
	require.NoError(t, err)
	require.NotNil(t, extended.ResolutionDueAt)
	assert.Equal(t, f.now.Add(48*time.Hour), *extended.ResolutionDueAt)
	assert.Equal(t, 1, extended.TATExtensions)

	rows := f.outbox(t, ticket.ID)
	last := rows[len(rows)-1]
	assert.Equal(t, string(events.EventTicketTATExtended), last.EventType)
	payload := decode(t, last)
	require.NotNil(t, payload.DueAt)
	assert.True(t, payload.DueAt.Equal(*extended.ResolutionDueAt))

	oversized, err := f.tickets.ExtendTAT(ctx, admin, ticket.ID, "4000 months")
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(24*time.Hour), *oversized.ResolutionDueAt, "oversized text falls back to one day")

	view, err := f.tickets.SLAStatus(ctx, student, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, view.HoursToResolution)
	assert.InDelta(t, 48.0, *view.HoursToResolution, 1e-9)
}

func TestAnonymousCallsRevealNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := f.create(t).ID
	var anonymous domain.Actor
	chief := "chief"

	calls := map[string]func(id int64) error{
		"get": func(id int64) error {
			_, err := f.tickets.GetTicket(ctx, anonymous, id)
			return err
		},
		"sla": func(id int64) error {
			_, err := f.tickets.SLAStatus(ctx, anonymous, id)
			return err
		},
		"acknowledge": func(id int64) error {
			_, err := f.tickets.Acknowledge(ctx, anonymous, id, "")
			return err
		},
		"comment": func(id int64) error {
			_, err := f.tickets.AddComment(ctx, anonymous, id, "hello", domain.CommentPublic)
			return err
		},
		"resolve": func(id int64) error {
			_, err := f.tickets.Resolve(ctx, anonymous, id)
			return err
		},
		"reopen": func(id int64) error {
			_, err := f.tickets.Reopen(ctx, anonymous, id)
			return err
		},
		"rate": func(id int64) error {
			_, err := f.tickets.Rate(ctx, anonymous, id, 4, "")
			return err
		},
		"extend": func(id int64) error {
			_, err := f.tickets.ExtendTAT(ctx, anonymous, id, "1 day")
			return err
		},
		"reassign": func(id int64) error {
			_, err := f.assignments.Reassign(ctx, anonymous, id, &chief)
			return err
		},
		"escalate": func(id int64) error {
			_, err := f.escalations.Escalate(ctx, anonymous, id, "")
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			for _, id := range []int64{existing, 999} {
				err := call(id)
				assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized), "ticket %d: got %v", id, err)
			}
		})
	}
	assert.Len(t, f.history(t, existing), 1)
}
