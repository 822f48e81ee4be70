package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/events"
	"github.com/sst-resolve/resolve-service/internal/lifecycle"
	"github.com/sst-resolve/resolve-service/internal/repository/memory"
	"github.com/sst-resolve/resolve-service/internal/sla"
)

var (
	student = domain.Actor{UserID: "stu-1", Role: domain.RoleStudent}
	other   = domain.Actor{UserID: "stu-2", Role: domain.RoleStudent}
	admin   = domain.Actor{UserID: "warden-a", Role: domain.RoleAdmin}
)

// fixture wires every service over one memory store and a hand-driven clock.
type fixture struct {
	now         time.Time
	store       *memory.Store
	tickets     *TicketService
	assignments *AssignmentService
	escalations *EscalationService
	sweeps      *SweepService
	analytics   *AnalyticsService
	hostel      int64
	blockA      int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.store = memory.NewStore(clock)
	ctx := context.Background()
	repos := f.store.Repositories()

	for _, u := range []domain.User{
		{ID: "stu-1", Name: "Student One", Email: "one@example.edu", Role: domain.RoleStudent},
		{ID: "stu-2", Name: "Student Two", Email: "two@example.edu", Role: domain.RoleStudent},
		{ID: "warden-a", Name: "Warden A", Email: "a@example.edu", Role: domain.RoleAdmin},
		{ID: "chief", Name: "Chief Warden", Email: "chief@example.edu", Role: domain.RoleAdmin},
		{ID: "boss", Name: "Boss", Email: "boss@example.edu", Role: domain.RoleSuperAdmin},
	} {
		user := u
		require.NoError(t, repos.Users.Upsert(ctx, &user))
	}

	hostel := &domain.Category{Name: "Hostel", Slug: "hostel", IsActive: true}
	require.NoError(t, repos.Categories.UpsertCategory(ctx, hostel))
	blockA := &domain.Scope{CategoryID: hostel.ID, Name: "Block A", IsActive: true}
	require.NoError(t, repos.Categories.UpsertScope(ctx, blockA))
	f.hostel, f.blockA = hostel.ID, blockA.ID

	ack, resolution := 4, 48
	require.NoError(t, repos.Rules.UpsertBudget(ctx, &domain.SLABudget{DomainID: hostel.ID, AckHours: &ack, ResolutionHours: &resolution}))
	require.NoError(t, repos.Rules.UpsertRule(ctx, &domain.EscalationRule{DomainID: hostel.ID, ScopeID: &f.blockA, Level: 1, UserID: "warden-a"}))
	require.NoError(t, repos.Rules.UpsertRule(ctx, &domain.EscalationRule{DomainID: hostel.ID, Level: 2, UserID: "chief"}))

	machine := lifecycle.NewMachine(clock)
	resolver := sla.NewResolver(repos.Rules, repos.Users, nil, nil)
	f.tickets = NewTicketService(TicketDependencies{Store: f.store, Resolver: resolver, Machine: machine})
	f.assignments = NewAssignmentService(AssignmentDependencies{Store: f.store, Machine: machine})
	f.escalations = NewEscalationService(EscalationDependencies{Store: f.store, Resolver: resolver, Machine: machine})
	f.sweeps = NewSweepService(SweepDependencies{
		Store:             f.store,
		Escalations:       f.escalations,
		Machine:           machine,
		AutoEscalateAfter: "1 day",
	})
	f.analytics = NewAnalyticsService(f.store, machine)
	return f
}

func (f *fixture) create(t *testing.T) *domain.Ticket {
	t.Helper()
	scope := f.blockA
	ticket, err := f.tickets.CreateTicket(context.Background(), student, TicketCreateInput{
		CategoryID:  f.hostel,
		ScopeID:     &scope,
		Description: "Water leaking in room 204",
	})
	require.NoError(t, err)
	return ticket
}

func (f *fixture) history(t *testing.T, ticketID int64) []domain.TicketHistory {
	t.Helper()
	history, err := f.store.Repositories().History.ListByTicket(context.Background(), ticketID)
	require.NoError(t, err)
	return history
}

func (f *fixture) outbox(t *testing.T, ticketID int64) []domain.OutboxEvent {
	t.Helper()
	rows, err := f.store.Repositories().Outbox.ListByTicket(context.Background(), ticketID)
	require.NoError(t, err)
	return rows
}

func (f *fixture) eventTypes(t *testing.T, ticketID int64) []events.EventType {
	t.Helper()
	var out []events.EventType
	for _, row := range f.outbox(t, ticketID) {
		out = append(out, events.EventType(row.EventType))
	}
	return out
}

func decode(t *testing.T, row domain.OutboxEvent) events.TicketEventPayload {
	t.Helper()
	payload, err := events.FromOutbox(row).DecodePayload()
	require.NoError(t, err)
	return payload
}
