package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/repository"
	"github.com/sst-resolve/resolve-service/internal/sla"
)

type ticketRepo struct{ v *view }

func (r *ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	return r.v.write(func(st *state) error {
		st.nextTicketID++
		ticket.ID = st.nextTicketID
		if ticket.CreatedAt.IsZero() {
			ticket.CreatedAt = r.v.store.now()
		}
		ticket.UpdatedAt = ticket.CreatedAt
		st.tickets[ticket.ID] = ticket.Clone()
		return nil
	})
}

func (r *ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.tickets[ticket.ID]; !ok {
			return pgx.ErrNoRows
		}
		st.tickets[ticket.ID] = ticket.Clone()
		return nil
	})
}

func (r *ticketRepo) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.v.read(func(st *state) error {
		t, ok := st.tickets[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = t.Clone()
		return nil
	})
	return out, err
}

// GetForUpdate needs no extra locking: transactions are already serialized.
func (r *ticketRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *ticketRepo) ListOverdue(_ context.Context, filter repository.OverdueFilter) ([]domain.Ticket, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	return r.filter(func(t *domain.Ticket) bool {
		return sla.IsOverdue(t, filter.Now) && filter.Matches(t)
	}, limit)
}

func (r *ticketRepo) ListCreatedSince(_ context.Context, since time.Time) ([]domain.Ticket, error) {
	return r.filter(func(t *domain.Ticket) bool { return !t.CreatedAt.Before(since) }, 0)
}

func (r *ticketRepo) filter(pred func(*domain.Ticket) bool, limit int) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.v.read(func(st *state) error {
		for _, t := range st.tickets {
			if pred(t) {
				out = append(out, *t.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

type historyRepo struct{ v *view }

func (r *historyRepo) Create(_ context.Context, history *domain.TicketHistory) error {
	return r.v.write(func(st *state) error {
		st.nextHistoryID++
		history.ID = st.nextHistoryID
		if history.CreatedAt.IsZero() {
			history.CreatedAt = r.v.store.now()
		}
		st.history = append(st.history, *history)
		return nil
	})
}

func (r *historyRepo) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	var out []domain.TicketHistory
	err := r.v.read(func(st *state) error {
		for _, h := range st.history {
			if h.TicketID == ticketID {
				out = append(out, h)
			}
		}
		return nil
	})
	return out, err
}

type ruleRepo struct{ v *view }

func (r *ruleRepo) ListRules(_ context.Context, domainID int64, scopeID *int64) ([]domain.EscalationRule, error) {
	var out []domain.EscalationRule
	err := r.v.read(func(st *state) error {
		for _, rule := range st.rules {
			if rule.DomainID != domainID {
				continue
			}
			if rule.ScopeID != nil && (scopeID == nil || *rule.ScopeID != *scopeID) {
				continue
			}
			out = append(out, *rule)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level == out[j].Level {
			return out[i].ID < out[j].ID
		}
		return out[i].Level < out[j].Level
	})
	return out, err
}

func (r *ruleRepo) ListBudgets(_ context.Context, domainID int64, scopeID *int64) ([]domain.SLABudget, error) {
	var out []domain.SLABudget
	err := r.v.read(func(st *state) error {
		for _, b := range st.budgets {
			if b.DomainID != domainID {
				continue
			}
			if b.ScopeID != nil && (scopeID == nil || *b.ScopeID != *scopeID) {
				continue
			}
			out = append(out, b)
		}
		return nil
	})
	return out, err
}

func (r *ruleRepo) UpsertRule(_ context.Context, rule *domain.EscalationRule) error {
	return r.v.write(func(st *state) error {
		now := r.v.store.now()
		for _, existing := range st.rules {
			if existing.DomainID == rule.DomainID && existing.Level == rule.Level && sameScope(existing.ScopeID, rule.ScopeID) {
				existing.UserID = rule.UserID
				existing.UpdatedAt = now
				*rule = *existing
				return nil
			}
		}
		st.nextRuleID++
		rule.ID = st.nextRuleID
		rule.CreatedAt = now
		rule.UpdatedAt = now
		stored := *rule
		st.rules[rule.ID] = &stored
		return nil
	})
}

func (r *ruleRepo) UpsertBudget(_ context.Context, budget *domain.SLABudget) error {
	return r.v.write(func(st *state) error {
		for i := range st.budgets {
			if st.budgets[i].DomainID == budget.DomainID && sameScope(st.budgets[i].ScopeID, budget.ScopeID) {
				st.budgets[i] = *budget
				return nil
			}
		}
		st.budgets = append(st.budgets, *budget)
		return nil
	})
}

type userRepo struct{ v *view }

func (r *userRepo) Upsert(_ context.Context, user *domain.User) error {
	return r.v.write(func(st *state) error {
		now := r.v.store.now()
		if user.ID == "" {
			st.nextUserID++
			user.ID = fmt.Sprintf("user-%d", st.nextUserID)
		}
		if existing, ok := st.users[user.ID]; ok {
			user.CreatedAt = existing.CreatedAt
		} else {
			user.CreatedAt = now
		}
		user.UpdatedAt = now
		stored := *user
		st.users[user.ID] = &stored
		return nil
	})
}

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.v.read(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return pgx.ErrNoRows
		}
		v := *u
		out = &v
		return nil
	})
	return out, err
}

func (r *userRepo) GetByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	var out *domain.User
	err := r.v.read(func(st *state) error {
		for _, u := range st.users {
			if externalID != "" && u.ExternalID == externalID {
				v := *u
				out = &v
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (r *userRepo) GetIdentities(_ context.Context, ids []string) (map[string]domain.Identity, error) {
	out := make(map[string]domain.Identity, len(ids))
	err := r.v.read(func(st *state) error {
		for _, id := range ids {
			if u, ok := st.users[id]; ok {
				out[id] = u.Identity()
			}
		}
		return nil
	})
	return out, err
}

func (r *userRepo) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	var out []domain.User
	err := r.v.read(func(st *state) error {
		for _, u := range st.users {
			if u.Role == role {
				out = append(out, *u)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

type categoryRepo struct{ v *view }

func (r *categoryRepo) UpsertCategory(_ context.Context, category *domain.Category) error {
	return r.v.write(func(st *state) error {
		now := r.v.store.now()
		for _, existing := range st.categories {
			if existing.Slug == category.Slug {
				existing.Name = category.Name
				existing.Description = category.Description
				existing.IsActive = category.IsActive
				existing.UpdatedAt = now
				*category = *existing
				return nil
			}
		}
		st.nextCategoryID++
		category.ID = st.nextCategoryID
		category.CreatedAt = now
		category.UpdatedAt = now
		stored := *category
		st.categories[category.ID] = &stored
		return nil
	})
}

func (r *categoryRepo) UpsertScope(_ context.Context, scope *domain.Scope) error {
	return r.v.write(func(st *state) error {
		now := r.v.store.now()
		for _, existing := range st.scopes {
			if existing.CategoryID == scope.CategoryID && existing.Name == scope.Name {
				existing.IsActive = scope.IsActive
				existing.UpdatedAt = now
				*scope = *existing
				return nil
			}
		}
		st.nextScopeID++
		scope.ID = st.nextScopeID
		scope.CreatedAt = now
		scope.UpdatedAt = now
		stored := *scope
		st.scopes[scope.ID] = &stored
		return nil
	})
}

func (r *categoryRepo) GetCategory(_ context.Context, id int64) (*domain.Category, error) {
	var out *domain.Category
	err := r.v.read(func(st *state) error {
		c, ok := st.categories[id]
		if !ok {
			return pgx.ErrNoRows
		}
		v := *c
		out = &v
		return nil
	})
	return out, err
}

func (r *categoryRepo) GetCategoryBySlug(_ context.Context, slug string) (*domain.Category, error) {
	var out *domain.Category
	err := r.v.read(func(st *state) error {
		for _, c := range st.categories {
			if c.Slug == slug {
				v := *c
				out = &v
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (r *categoryRepo) GetScope(_ context.Context, id int64) (*domain.Scope, error) {
	var out *domain.Scope
	err := r.v.read(func(st *state) error {
		sc, ok := st.scopes[id]
		if !ok {
			return pgx.ErrNoRows
		}
		v := *sc
		out = &v
		return nil
	})
	return out, err
}

func (r *categoryRepo) ListScopes(_ context.Context, categoryID int64) ([]domain.Scope, error) {
	var out []domain.Scope
	err := r.v.read(func(st *state) error {
		for _, sc := range st.scopes {
			if sc.CategoryID == categoryID {
				out = append(out, *sc)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

type outboxRepo struct{ v *view }

func (r *outboxRepo) Enqueue(_ context.Context, event *domain.OutboxEvent) error {
	return r.v.write(func(st *state) error {
		if event.CreatedAt.IsZero() {
			event.CreatedAt = r.v.store.now()
		}
		stored := *event
		stored.Payload = append([]byte(nil), event.Payload...)
		st.outbox = append(st.outbox, stored)
		return nil
	})
}

func (r *outboxRepo) FetchUnpublished(_ context.Context, limit, maxAttempts int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.OutboxEvent
	err := r.v.read(func(st *state) error {
		for _, e := range st.outbox {
			if e.PublishedAt != nil || (maxAttempts > 0 && e.Attempts >= maxAttempts) {
				continue
			}
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *outboxRepo) MarkPublished(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(e *domain.OutboxEvent) {
		published := at
		e.PublishedAt = &published
		e.Attempts++
		e.LastError = nil
	})
}

func (r *outboxRepo) MarkFailed(_ context.Context, id string, reason string) error {
	return r.update(id, func(e *domain.OutboxEvent) {
		msg := reason
		e.Attempts++
		e.LastError = &msg
	})
}

func (r *outboxRepo) MarkDelivered(_ context.Context, id string, publisher string) error {
	return r.update(id, func(e *domain.OutboxEvent) {
		if !e.DeliveredVia(publisher) {
			e.DeliveredTo = append(append([]string(nil), e.DeliveredTo...), publisher)
		}
	})
}

func (r *outboxRepo) update(id string, fn func(e *domain.OutboxEvent)) error {
	return r.v.write(func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].ID == id {
				fn(&st.outbox[i])
				return nil
			}
		}
		return pgx.ErrNoRows
	})
}

func (r *outboxRepo) ListByTicket(_ context.Context, ticketID int64) ([]domain.OutboxEvent, error) {
	var out []domain.OutboxEvent
	err := r.v.read(func(st *state) error {
		for _, e := range st.outbox {
			if e.TicketID == ticketID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func sameScope(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
