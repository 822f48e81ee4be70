package sla

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sst-resolve/resolve-service/internal/domain"
	apperrors "github.com/sst-resolve/resolve-service/pkg/util/errorutil"
)

// RuleSource reads escalation rules and SLA budgets. Implementations return
// scope-specific rows and domain-wide rows (nil scope) for the domain in one call.
type RuleSource interface {
	ListRules(ctx context.Context, domainID int64, scopeID *int64) ([]domain.EscalationRule, error)
	ListBudgets(ctx context.Context, domainID int64, scopeID *int64) ([]domain.SLABudget, error)
}

// IdentitySource resolves user ids to contactable identities in one batch.
// Unknown ids are simply absent from the result.
type IdentitySource interface {
	GetIdentities(ctx context.Context, userIDs []string) (map[string]domain.Identity, error)
}

// ChainEntry is one step of an escalation chain.
type ChainEntry struct {
	Level         int             `json:"level"`
	RuleID        int64           `json:"rule_id"`
	ScopeSpecific bool            `json:"scope_specific"`
	Identity      domain.Identity `json:"identity"`
}

// Policy is the resolved SLA for a (domain, scope) key.
type Policy struct {
	AckHours        *int         `json:"ack_hours,omitempty"`
	ResolutionHours *int         `json:"resolution_hours,omitempty"`
	Chain           []ChainEntry `json:"chain"`
}

// NextAfter returns the first chain entry whose level exceeds level.
func (p Policy) NextAfter(level int) (ChainEntry, bool) {
	for _, entry := range p.Chain {
		if entry.Level > level {
			return entry, true
		}
	}
	return ChainEntry{}, false
}

// Resolver turns escalation rules and budgets into a Policy.
type Resolver struct {
	rules      RuleSource
	identities IdentitySource
	cache      PolicyCache
	logger     *zap.Logger
}

// NewResolver builds a resolver. cache may be nil.
func NewResolver(rules RuleSource, identities IdentitySource, cache PolicyCache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{rules: rules, identities: identities, cache: cache, logger: logger}
}

// Resolve returns the budgets and ordered escalation chain for domainID/scopeID.
// Parties that cannot be resolved are skipped and logged.
func (r *Resolver) Resolve(ctx context.Context, domainID int64, scopeID *int64) (Policy, error) {
	key := NewPolicyKey(domainID, scopeID)
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}

	rules, err := r.rules.ListRules(ctx, domainID, scopeID)
	if err != nil {
		return Policy{}, apperrors.NewDependencyFailure("escalation rules", err)
	}
	budgets, err := r.rules.ListBudgets(ctx, domainID, scopeID)
	if err != nil {
		return Policy{}, apperrors.NewDependencyFailure("sla budgets", err)
	}

	policy := Policy{}
	if budget, ok := MergeBudgets(budgets, domainID, scopeID); ok {
		policy.AckHours = budget.AckHours
		policy.ResolutionHours = budget.ResolutionHours
	}

	merged := MergeRules(rules, domainID, scopeID)
	chain, complete := r.resolveParties(ctx, merged)
	policy.Chain = chain

	if r.cache != nil && complete {
		r.cache.Set(ctx, key, policy)
	}
	return policy, nil
}

// Invalidate drops every cached policy.
func (r *Resolver) Invalidate(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Invalidate(ctx)
}

func (r *Resolver) resolveParties(ctx context.Context, rules []domain.EscalationRule) ([]ChainEntry, bool) {
	if len(rules) == 0 {
		return []ChainEntry{}, true
	}
	ids := make([]string, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if _, ok := seen[rule.UserID]; ok {
			continue
		}
		seen[rule.UserID] = struct{}{}
		ids = append(ids, rule.UserID)
	}

	identities, err := r.identities.GetIdentities(ctx, ids)
	if err != nil {
		r.logger.Warn("escalation chain identity lookup failed", zap.Error(err), zap.Int("parties", len(ids)))
		return []ChainEntry{}, false
	}

	chain := make([]ChainEntry, 0, len(rules))
	for _, rule := range rules {
		identity, ok := identities[rule.UserID]
		if !ok || !identity.Contactable() {
			r.logger.Warn("escalation target unavailable, skipping level",
				zap.Int64("rule_id", rule.ID),
				zap.Int64("domain_id", rule.DomainID),
				zap.Int("level", rule.Level),
				zap.String("user_id", rule.UserID))
			continue
		}
		chain = append(chain, ChainEntry{
			Level:         rule.Level,
			RuleID:        rule.ID,
			ScopeSpecific: !rule.DomainWide(),
			Identity:      identity,
		})
	}
	return chain, true
}

// MergeRules keeps, per level, the scope-specific rule when one exists and the
// domain-wide rule otherwise, ordered by level ascending.
func MergeRules(rules []domain.EscalationRule, domainID int64, scopeID *int64) []domain.EscalationRule {
	byLevel := make(map[int]domain.EscalationRule, len(rules))
	for _, rule := range rules {
		if rule.DomainID != domainID || !appliesToScope(rule.ScopeID, scopeID) {
			continue
		}
		current, exists := byLevel[rule.Level]
		switch {
		case !exists:
			byLevel[rule.Level] = rule
		case current.DomainWide() && !rule.DomainWide():
			byLevel[rule.Level] = rule
		case current.DomainWide() == rule.DomainWide() && rule.ID < current.ID:
			byLevel[rule.Level] = rule
		}
	}

	merged := make([]domain.EscalationRule, 0, len(byLevel))
	for _, rule := range byLevel {
		merged = append(merged, rule)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Level < merged[j].Level })
	return merged
}

// MergeBudgets picks the scope-specific budget row, falling back to the domain-wide row.
func MergeBudgets(budgets []domain.SLABudget, domainID int64, scopeID *int64) (domain.SLABudget, bool) {
	var fallback *domain.SLABudget
	for i := range budgets {
		b := budgets[i]
		if b.DomainID != domainID || !appliesToScope(b.ScopeID, scopeID) {
			continue
		}
		if !b.DomainWide() {
			return b, true
		}
		if fallback == nil {
			fallback = &b
		}
	}
	if fallback == nil {
		return domain.SLABudget{}, false
	}
	return *fallback, true
}

func appliesToScope(ruleScope, wanted *int64) bool {
	if ruleScope == nil {
		return true
	}
	return wanted != nil && *ruleScope == *wanted
}
