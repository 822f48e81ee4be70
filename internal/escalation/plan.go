// Package escalation decides where an unresolved ticket goes next.
package escalation

import (
	"fmt"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/sla"
)

// SuperAdminTier is the target recorded when the escalation chain is exhausted.
const SuperAdminTier = "super_admin"

// urgentLevel is the level from which a super-admin fallback is flagged urgent.
const urgentLevel = 2

// Decision is the outcome of planning one escalation step.
type Decision struct {
	PreviousLevel int
	NewLevel      int
	TargetLevel   int
	Target        *domain.Identity
	EscalatedTo   string
	SuperAdmin    bool
	Urgent        bool
}

// Assignee returns the user id the ticket should move to, or nil to keep the current assignee.
func (d Decision) Assignee() *string {
	if d.Target == nil {
		return nil
	}
	id := d.Target.UserID
	return &id
}

// Plan walks the chain from the ticket's current level. The next party is the first
// entry above the current level; when none exists the super-admin tier takes over.
func Plan(t *domain.Ticket, policy sla.Policy) Decision {
	d := Decision{
		PreviousLevel: t.EscalationLevel,
		NewLevel:      t.EscalationLevel + 1,
	}
	if entry, ok := policy.NextAfter(t.EscalationLevel); ok {
		identity := entry.Identity
		d.Target = &identity
		d.TargetLevel = entry.Level
		d.EscalatedTo = fmt.Sprintf("level_%d", entry.Level)
		return d
	}
	d.SuperAdmin = true
	d.EscalatedTo = SuperAdminTier
	d.Urgent = d.NewLevel >= urgentLevel
	return d
}
