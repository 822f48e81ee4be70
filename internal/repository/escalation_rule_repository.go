package repository

import (
	"context"

	"github.com/sst-resolve/resolve-service/internal/domain"
)

// EscalationRuleRepository reads and maintains escalation chains and SLA budgets.
type EscalationRuleRepository interface {
	// ListRules returns the scope-specific and domain-wide rules of a domain in one query.
	ListRules(ctx context.Context, domainID int64, scopeID *int64) ([]domain.EscalationRule, error)
	ListBudgets(ctx context.Context, domainID int64, scopeID *int64) ([]domain.SLABudget, error)
	UpsertRule(ctx context.Context, rule *domain.EscalationRule) error
	UpsertBudget(ctx context.Context, budget *domain.SLABudget) error
}

type escalationRuleRepository struct {
	db DBTX
}

// NewEscalationRuleRepository builds the repository.
func NewEscalationRuleRepository(db DBTX) EscalationRuleRepository {
	return &escalationRuleRepository{db: db}
}

func (r *escalationRuleRepository) ListRules(ctx context.Context, domainID int64, scopeID *int64) ([]domain.EscalationRule, error) {
	const query = `
        SELECT id, domain_id, scope_id, level, user_id, created_at, updated_at
        FROM escalation_rules
        WHERE domain_id=$1 AND (scope_id IS NULL OR scope_id=$2)
        ORDER BY level ASC, scope_id NULLS LAST, id ASC`
	rows, err := r.db.Query(ctx, query, domainID, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationRule
	for rows.Next() {
		var rule domain.EscalationRule
		if err := rows.Scan(
			&rule.ID,
			&rule.DomainID,
			&rule.ScopeID,
			&rule.Level,
			&rule.UserID,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func (r *escalationRuleRepository) ListBudgets(ctx context.Context, domainID int64, scopeID *int64) ([]domain.SLABudget, error) {
	const query = `
        SELECT domain_id, scope_id, ack_hours, resolution_hours
        FROM sla_budgets
        WHERE domain_id=$1 AND (scope_id IS NULL OR scope_id=$2)
        ORDER BY scope_id NULLS LAST`
	rows, err := r.db.Query(ctx, query, domainID, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLABudget
	for rows.Next() {
		var budget domain.SLABudget
		if err := rows.Scan(&budget.DomainID, &budget.ScopeID, &budget.AckHours, &budget.ResolutionHours); err != nil {
			return nil, err
		}
		result = append(result, budget)
	}
	return result, rows.Err()
}

func (r *escalationRuleRepository) UpsertRule(ctx context.Context, rule *domain.EscalationRule) error {
	const query = `
        INSERT INTO escalation_rules (domain_id, scope_id, level, user_id)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (domain_id, (COALESCE(scope_id, 0)), level) DO UPDATE SET user_id=EXCLUDED.user_id, updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		rule.DomainID,
		rule.ScopeID,
		rule.Level,
		rule.UserID,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *escalationRuleRepository) UpsertBudget(ctx context.Context, budget *domain.SLABudget) error {
	const query = `
        INSERT INTO sla_budgets (domain_id, scope_id, ack_hours, resolution_hours)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (domain_id, (COALESCE(scope_id, 0))) DO UPDATE SET ack_hours=EXCLUDED.ack_hours,
            resolution_hours=EXCLUDED.resolution_hours, updated_at=NOW()`
	_, err := r.db.Exec(ctx, query,
		budget.DomainID,
		budget.ScopeID,
		budget.AckHours,
		budget.ResolutionHours,
	)
	return err
}
