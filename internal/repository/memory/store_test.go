package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/repository"
)

var clock = time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	return NewStore(func() time.Time { return clock })
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket := &domain.Ticket{CreatedBy: "u1", Status: domain.TicketStatusOpen, Description: "leak"}
		require.NoError(t, repos.Tickets.Create(ctx, ticket))
		require.NoError(t, repos.History.Create(ctx, &domain.TicketHistory{TicketID: ticket.ID, ChangeType: domain.ChangeTypeCreated}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Repositories().Tickets.GetByID(ctx, 1)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	history, err := store.Repositories().History.ListByTicket(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestWithinTx_CommitsAndIsolatesCopies(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	var id int64
	err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket := &domain.Ticket{CreatedBy: "u1", Status: domain.TicketStatusOpen, Description: "sink"}
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		id = ticket.ID
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	got, err := store.Repositories().Tickets.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, clock, got.CreatedAt)

	got.Status = domain.TicketStatusResolved
	again, err := store.Repositories().Tickets.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, again.Status, "callers receive copies")
}

func TestWithinTx_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := newTestStore().WithinTx(ctx, func(context.Context, repository.Repositories) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestTickets_ListOverdue(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	repos := store.Repositories()
	past := clock.Add(-time.Hour)
	future := clock.Add(time.Hour)

	tickets := []*domain.Ticket{
		{CreatedBy: "u", Status: domain.TicketStatusOpen, AcknowledgementDueAt: &past},
		{CreatedBy: "u", Status: domain.TicketStatusInProgress, ResolutionDueAt: &future},
		{CreatedBy: "u", Status: domain.TicketStatusResolved, ResolutionDueAt: &past},
		{CreatedBy: "u", Status: domain.TicketStatusEscalated, ResolutionDueAt: &past},
	}
	for _, ticket := range tickets {
		require.NoError(t, repos.Tickets.Create(ctx, ticket))
	}

	overdue, err := repos.Tickets.ListOverdue(ctx, repository.OverdueFilter{Now: clock, Limit: 10})
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, int64(1), overdue[0].ID)
	assert.Equal(t, int64(4), overdue[1].ID)

	limited, err := repos.Tickets.ListOverdue(ctx, repository.OverdueFilter{Now: clock, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestTickets_ListOverdueFiltersBeforeLimit(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	repos := store.Repositories()
	past := clock.Add(-time.Hour)
	recent := clock.Add(-time.Minute)
	longAgo := clock.Add(-48 * time.Hour)

	tickets := []*domain.Ticket{
		{CreatedBy: "u", Status: domain.TicketStatusEscalated, AcknowledgementDueAt: &past, SLABreachedAt: &past, LastEscalationAt: &recent},
		{CreatedBy: "u", Status: domain.TicketStatusEscalated, AcknowledgementDueAt: &past, SLABreachedAt: &past, LastEscalationAt: &longAgo},
		{CreatedBy: "u", Status: domain.TicketStatusOpen, AcknowledgementDueAt: &past},
	}
	for _, ticket := range tickets {
		require.NoError(t, repos.Tickets.Create(ctx, ticket))
	}

	unstamped, err := repos.Tickets.ListOverdue(ctx, repository.OverdueFilter{Now: clock, Unbreached: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, unstamped, 1)
	assert.Equal(t, int64(3), unstamped[0].ID)

	cutoff := clock.Add(-24 * time.Hour)
	due, err := repos.Tickets.ListOverdue(ctx, repository.OverdueFilter{Now: clock, EscalatedBefore: &cutoff, Limit: 10})
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, int64(2), due[0].ID)
	assert.Equal(t, int64(3), due[1].ID)
}

func TestUsers_IdentitiesAndRoles(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	users := store.Repositories().Users

	require.NoError(t, users.Upsert(ctx, &domain.User{ID: "a", Name: "Ann", Email: "ann@example.edu", Role: domain.RoleAdmin}))
	require.NoError(t, users.Upsert(ctx, &domain.User{ID: "s", ExternalID: "ext-s", Name: "Sam", Email: "sam@example.edu", Role: domain.RoleSuperAdmin}))
	generated := &domain.User{Name: "Gen", Role: domain.RoleStudent}
	require.NoError(t, users.Upsert(ctx, generated))
	assert.NotEmpty(t, generated.ID)

	ids, err := users.GetIdentities(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Equal(t, "ann@example.edu", ids["a"].Email)

	byExt, err := users.GetByExternalID(ctx, "ext-s")
	require.NoError(t, err)
	assert.Equal(t, "s", byExt.ID)

	supers, err := users.ListByRole(ctx, domain.RoleSuperAdmin)
	require.NoError(t, err)
	require.Len(t, supers, 1)

	_, err = users.GetByID(ctx, "nobody")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestRules_UpsertReplacesLevel(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	rules := store.Repositories().Rules
	scope := int64(3)

	first := &domain.EscalationRule{DomainID: 1, ScopeID: &scope, Level: 1, UserID: "x"}
	require.NoError(t, rules.UpsertRule(ctx, first))
	second := &domain.EscalationRule{DomainID: 1, ScopeID: &scope, Level: 1, UserID: "y"}
	require.NoError(t, rules.UpsertRule(ctx, second))
	require.NoError(t, rules.UpsertRule(ctx, &domain.EscalationRule{DomainID: 1, Level: 2, UserID: "z"}))
	require.NoError(t, rules.UpsertRule(ctx, &domain.EscalationRule{DomainID: 1, ScopeID: ptr(int64(4)), Level: 2, UserID: "other-scope"}))

	assert.Equal(t, first.ID, second.ID)
	listed, err := rules.ListRules(ctx, 1, &scope)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	for _, rule := range listed {
		assert.NotEqual(t, "other-scope", rule.UserID)
	}
}

func TestOutbox_PublishAndFailure(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	outbox := store.Repositories().Outbox

	require.NoError(t, outbox.Enqueue(ctx, &domain.OutboxEvent{ID: "e1", EventType: "ticket.created", TicketID: 1, CreatedAt: clock}))
	require.NoError(t, outbox.Enqueue(ctx, &domain.OutboxEvent{ID: "e2", EventType: "ticket.resolved", TicketID: 1, CreatedAt: clock.Add(time.Second)}))

	pending, err := outbox.FetchUnpublished(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "e1", pending[0].ID)

	require.NoError(t, outbox.MarkPublished(ctx, "e1", clock))
	require.NoError(t, outbox.MarkFailed(ctx, "e2", "broker down"))
	require.NoError(t, outbox.MarkFailed(ctx, "e2", "broker down"))

	pending, err = outbox.FetchUnpublished(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, pending, "published and exhausted events are not fetched")

	all, err := outbox.ListByTicket(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.NotNil(t, all[0].PublishedAt)
	assert.Equal(t, 2, all[1].Attempts)
	require.NotNil(t, all[1].LastError)
	assert.Equal(t, "broker down", *all[1].LastError)

	assert.ErrorIs(t, outbox.MarkPublished(ctx, "missing", clock), pgx.ErrNoRows)
}

func ptr[T any](v T) *T { return &v }
