// Package memory is an in-process implementation of the repository contracts.
// Transactions are serialized and work on a private copy that replaces the
// committed state only when the unit of work succeeds.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/repository"
)

type state struct {
	tickets    map[int64]*domain.Ticket
	users      map[string]*domain.User
	categories map[int64]*domain.Category
	scopes     map[int64]*domain.Scope
	rules      map[int64]*domain.EscalationRule
	budgets    []domain.SLABudget
	history    []domain.TicketHistory
	outbox     []domain.OutboxEvent

	nextTicketID   int64
	nextHistoryID  int64
	nextRuleID     int64
	nextCategoryID int64
	nextScopeID    int64
	nextUserID     int64
}

func newState() *state {
	return &state{
		tickets:    make(map[int64]*domain.Ticket),
		users:      make(map[string]*domain.User),
		categories: make(map[int64]*domain.Category),
		scopes:     make(map[int64]*domain.Scope),
		rules:      make(map[int64]*domain.EscalationRule),
	}
}

func (s *state) clone() *state {
	cp := &state{
		tickets:        make(map[int64]*domain.Ticket, len(s.tickets)),
		users:          make(map[string]*domain.User, len(s.users)),
		categories:     make(map[int64]*domain.Category, len(s.categories)),
		scopes:         make(map[int64]*domain.Scope, len(s.scopes)),
		rules:          make(map[int64]*domain.EscalationRule, len(s.rules)),
		budgets:        append([]domain.SLABudget(nil), s.budgets...),
		history:        append([]domain.TicketHistory(nil), s.history...),
		outbox:         append([]domain.OutboxEvent(nil), s.outbox...),
		nextTicketID:   s.nextTicketID,
		nextHistoryID:  s.nextHistoryID,
		nextRuleID:     s.nextRuleID,
		nextCategoryID: s.nextCategoryID,
		nextScopeID:    s.nextScopeID,
		nextUserID:     s.nextUserID,
	}
	for id, t := range s.tickets {
		cp.tickets[id] = t.Clone()
	}
	for id, u := range s.users {
		v := *u
		cp.users[id] = &v
	}
	for id, c := range s.categories {
		v := *c
		cp.categories[id] = &v
	}
	for id, sc := range s.scopes {
		v := *sc
		cp.scopes[id] = &v
	}
	for id, r := range s.rules {
		v := *r
		cp.rules[id] = &v
	}
	return cp
}

// Store implements repository.Transactor in memory.
type Store struct {
	txMu      sync.Mutex
	mu        sync.RWMutex
	committed *state
	now       func() time.Time
}

var _ repository.Transactor = (*Store)(nil)

// NewStore builds an empty store. A nil clock means wall-clock UTC.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{committed: newState(), now: now}
}

// Repositories returns auto-committing repositories.
func (s *Store) Repositories() repository.Repositories {
	return bind(&view{store: s})
}

// WithinTx runs fn against a private copy of the state and publishes it on success.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	working := s.committed.clone()
	s.mu.RUnlock()

	if err := fn(ctx, bind(&view{store: s, tx: working})); err != nil {
		return err
	}

	s.mu.Lock()
	s.committed = working
	s.mu.Unlock()
	return nil
}

type view struct {
	store *Store
	tx    *state
}

func (v *view) read(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return fn(v.store.committed)
}

func (v *view) write(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.txMu.Lock()
	defer v.store.txMu.Unlock()
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.committed)
}

func bind(v *view) repository.Repositories {
	return repository.Repositories{
		Tickets:    &ticketRepo{v: v},
		History:    &historyRepo{v: v},
		Rules:      &ruleRepo{v: v},
		Users:      &userRepo{v: v},
		Categories: &categoryRepo{v: v},
		Outbox:     &outboxRepo{v: v},
	}
}
