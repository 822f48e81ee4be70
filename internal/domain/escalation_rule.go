package domain

import "time"

// EscalationRule binds a responsible user to one level of a (domain, scope) chain.
// A nil ScopeID makes the rule a domain-wide fallback.
type EscalationRule struct {
	ID        int64
	DomainID  int64
	ScopeID   *int64
	Level     int
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DomainWide reports whether the rule applies to every scope of its domain.
func (r EscalationRule) DomainWide() bool {
	return r.ScopeID == nil
}

// SLABudget holds hour budgets for a (domain, scope) key. Nil hours mean no SLA.
type SLABudget struct {
	DomainID        int64
	ScopeID         *int64
	AckHours        *int
	ResolutionHours *int
}

// DomainWide reports whether the budget applies to every scope of its domain.
func (b SLABudget) DomainWide() bool {
	return b.ScopeID == nil
}
