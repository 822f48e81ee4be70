package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sst-resolve/resolve-service/internal/domain"
)

func TestAllowed(t *testing.T) {
	ticket := newTicket(domain.TicketStatusOpen)
	system := domain.SystemActor()

	cases := []struct {
		action Action
		actor  domain.Actor
		want   bool
	}{
		{ActionView, student, true},
		{ActionView, other, false},
		{ActionView, member, true},
		{ActionComment, student, true},
		{ActionComment, member, false},
		{ActionEscalate, student, true},
		{ActionEscalate, other, false},
		{ActionEscalate, system, true},
		{ActionEscalate, member, false},
		{ActionReassign, admin, true},
		{ActionReassign, student, false},
		{ActionResolve, super, true},
		{ActionResolve, member, false},
		{ActionReopen, student, true},
		{ActionReopen, other, false},
		{ActionRate, student, true},
		{ActionRate, admin, false},
		{ActionExtendTAT, admin, true},
		{ActionExtendTAT, student, false},
		{ActionAcknowledge, system, false},
		{Action("unknown"), super, false},
	}
	for _, tc := range cases {
		got := Allowed(tc.action, tc.actor, ticket)
		assert.Equal(t, tc.want, got, "Allowed(%s, %s/%s)", tc.action, tc.actor.Role, tc.actor.UserID)
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(domain.TicketStatusOpen, domain.TicketStatusInProgress))
	assert.True(t, CanTransition(domain.TicketStatusEscalated, domain.TicketStatusEscalated))
	assert.True(t, CanTransition(domain.TicketStatusResolved, domain.TicketStatusReopened))
	assert.False(t, CanTransition(domain.TicketStatusResolved, domain.TicketStatusInProgress))
	assert.False(t, CanTransition(domain.TicketStatusInProgress, domain.TicketStatusOpen))
	assert.False(t, CanTransition(domain.TicketStatusReopened, domain.TicketStatusOpen))
}
