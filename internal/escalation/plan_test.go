package escalation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/sla"
)

func chain(levels ...int) sla.Policy {
	policy := sla.Policy{}
	for _, level := range levels {
		id := "party-" + string(rune('0'+level))
		policy.Chain = append(policy.Chain, sla.ChainEntry{
			Level:    level,
			Identity: domain.Identity{UserID: id, Email: id + "@example.edu"},
		})
	}
	return policy
}

func TestPlan_HostelBlockAScenario(t *testing.T) {
	ticket := &domain.Ticket{EscalationLevel: 1}

	t.Run("next level exists", func(t *testing.T) {
		d := Plan(ticket, chain(1, 2))
		require.NotNil(t, d.Target)
		assert.Equal(t, "party-2", d.Target.UserID)
		assert.Equal(t, "level_2", d.EscalatedTo)
		assert.Equal(t, 2, d.NewLevel)
		assert.Equal(t, 1, d.PreviousLevel)
		assert.False(t, d.SuperAdmin)
		assert.False(t, d.Urgent)
		require.NotNil(t, d.Assignee())
		assert.Equal(t, "party-2", *d.Assignee())
	})

	t.Run("chain exhausted at level two is urgent", func(t *testing.T) {
		d := Plan(ticket, chain(1))
		assert.Nil(t, d.Target)
		assert.Nil(t, d.Assignee())
		assert.True(t, d.SuperAdmin)
		assert.Equal(t, SuperAdminTier, d.EscalatedTo)
		assert.Equal(t, 2, d.NewLevel)
		assert.True(t, d.Urgent)
	})
}

func TestPlan_FirstExhaustionIsNotUrgent(t *testing.T) {
	d := Plan(&domain.Ticket{EscalationLevel: 0}, sla.Policy{})
	assert.True(t, d.SuperAdmin)
	assert.Equal(t, 1, d.NewLevel)
	assert.False(t, d.Urgent)
}

func TestPlan_SkipsMissingLevels(t *testing.T) {
	d := Plan(&domain.Ticket{EscalationLevel: 1}, chain(1, 3))
	require.NotNil(t, d.Target)
	assert.Equal(t, "party-3", d.Target.UserID)
	assert.Equal(t, "level_3", d.EscalatedTo)
	assert.Equal(t, 3, d.TargetLevel)
	assert.Equal(t, 2, d.NewLevel)
}
