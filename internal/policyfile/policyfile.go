// Package policyfile loads escalation policy definitions (users, categories,
// scopes, SLA budgets and escalation rules) from YAML and applies them to the store.
package policyfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/repository"
)

// File is the root of a policy document.
type File struct {
	Users      []UserEntry     `yaml:"users"`
	Categories []CategoryEntry `yaml:"categories"`
}

// UserEntry declares a person that rules may reference.
type UserEntry struct {
	ID         string `yaml:"id"`
	ExternalID string `yaml:"external_id"`
	Name       string `yaml:"name"`
	Email      string `yaml:"email"`
	Role       string `yaml:"role"`
}

// CategoryEntry declares a domain with its scopes, budgets and chain.
type CategoryEntry struct {
	Slug        string        `yaml:"slug"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Inactive    bool          `yaml:"inactive"`
	Scopes      []string      `yaml:"scopes"`
	Budgets     []BudgetEntry `yaml:"budgets"`
	Rules       []RuleEntry   `yaml:"rules"`
}

// BudgetEntry sets SLA hours; an empty Scope makes it domain-wide.
type BudgetEntry struct {
	Scope           string `yaml:"scope"`
	AckHours        *int   `yaml:"ack_hours"`
	ResolutionHours *int   `yaml:"resolution_hours"`
}

// RuleEntry binds a user to a chain level; an empty Scope makes it domain-wide.
type RuleEntry struct {
	Scope  string `yaml:"scope"`
	Level  int    `yaml:"level"`
	UserID string `yaml:"user_id"`
}

// Report counts what Apply wrote.
type Report struct {
	Users      int `json:"users"`
	Categories int `json:"categories"`
	Scopes     int `json:"scopes"`
	Budgets    int `json:"budgets"`
	Rules      int `json:"rules"`
}

// Load reads and parses path.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a policy document and validates its internal references.
func Parse(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode policy file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the document without touching storage.
func (f *File) Validate() error {
	var problems []string
	for i, u := range f.Users {
		if strings.TrimSpace(u.ID) == "" {
			problems = append(problems, fmt.Sprintf("users[%d]: id is required", i))
		}
		if !domain.Role(u.Role).Valid() {
			problems = append(problems, fmt.Sprintf("users[%d]: unknown role %q", i, u.Role))
		}
	}
	slugs := make(map[string]struct{}, len(f.Categories))
	for i, c := range f.Categories {
		if c.Slug == "" || c.Name == "" {
			problems = append(problems, fmt.Sprintf("categories[%d]: slug and name are required", i))
		}
		if _, dup := slugs[c.Slug]; dup {
			problems = append(problems, fmt.Sprintf("categories[%d]: duplicate slug %q", i, c.Slug))
		}
		slugs[c.Slug] = struct{}{}

		scopes := make(map[string]struct{}, len(c.Scopes))
		for _, s := range c.Scopes {
			scopes[s] = struct{}{}
		}
		for j, b := range c.Budgets {
			if b.Scope != "" {
				if _, ok := scopes[b.Scope]; !ok {
					problems = append(problems, fmt.Sprintf("categories[%d].budgets[%d]: unknown scope %q", i, j, b.Scope))
				}
			}
			if negative(b.AckHours) || negative(b.ResolutionHours) {
				problems = append(problems, fmt.Sprintf("categories[%d].budgets[%d]: hours must not be negative", i, j))
			}
		}
		for j, r := range c.Rules {
			if r.Scope != "" {
				if _, ok := scopes[r.Scope]; !ok {
					problems = append(problems, fmt.Sprintf("categories[%d].rules[%d]: unknown scope %q", i, j, r.Scope))
				}
			}
			if r.Level < 1 {
				problems = append(problems, fmt.Sprintf("categories[%d].rules[%d]: level must be at least 1", i, j))
			}
			if r.UserID == "" {
				problems = append(problems, fmt.Sprintf("categories[%d].rules[%d]: user_id is required", i, j))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid policy file: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Apply upserts the document in one unit of work. Rules may reference users
// declared in the file or already stored.
func (f *File) Apply(ctx context.Context, store repository.Transactor) (Report, error) {
	var report Report
	err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		report = Report{}
		known := make(map[string]struct{}, len(f.Users))
		for _, u := range f.Users {
			user := &domain.User{
				ID:         u.ID,
				ExternalID: u.ExternalID,
				Name:       u.Name,
				Email:      u.Email,
				Role:       domain.Role(u.Role),
			}
			if err := repos.Users.Upsert(ctx, user); err != nil {
				return fmt.Errorf("upsert user %s: %w", u.ID, err)
			}
			known[user.ID] = struct{}{}
			report.Users++
		}

		for _, c := range f.Categories {
			category := &domain.Category{
				Name:        c.Name,
				Slug:        c.Slug,
				Description: c.Description,
				IsActive:    !c.Inactive,
			}
			if err := repos.Categories.UpsertCategory(ctx, category); err != nil {
				return fmt.Errorf("upsert category %s: %w", c.Slug, err)
			}
			report.Categories++

			scopeIDs := make(map[string]int64, len(c.Scopes))
			for _, name := range c.Scopes {
				scope := &domain.Scope{CategoryID: category.ID, Name: name, IsActive: true}
				if err := repos.Categories.UpsertScope(ctx, scope); err != nil {
					return fmt.Errorf("upsert scope %s/%s: %w", c.Slug, name, err)
				}
				scopeIDs[name] = scope.ID
				report.Scopes++
			}

			for _, b := range c.Budgets {
				budget := &domain.SLABudget{
					DomainID:        category.ID,
					ScopeID:         scopeRef(scopeIDs, b.Scope),
					AckHours:        b.AckHours,
					ResolutionHours: b.ResolutionHours,
				}
				if err := repos.Rules.UpsertBudget(ctx, budget); err != nil {
					return fmt.Errorf("upsert budget %s/%s: %w", c.Slug, b.Scope, err)
				}
				report.Budgets++
			}

			for _, r := range c.Rules {
				if err := requireUser(ctx, repos, known, r.UserID); err != nil {
					return err
				}
				rule := &domain.EscalationRule{
					DomainID: category.ID,
					ScopeID:  scopeRef(scopeIDs, r.Scope),
					Level:    r.Level,
					UserID:   r.UserID,
				}
				if err := repos.Rules.UpsertRule(ctx, rule); err != nil {
					return fmt.Errorf("upsert rule %s/%s level %d: %w", c.Slug, r.Scope, r.Level, err)
				}
				report.Rules++
			}
		}
		return nil
	})
	return report, err
}

func requireUser(ctx context.Context, repos repository.Repositories, known map[string]struct{}, userID string) error {
	if _, ok := known[userID]; ok {
		return nil
	}
	if _, err := repos.Users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("rule references unknown user %q", userID)
		}
		return err
	}
	known[userID] = struct{}{}
	return nil
}

func scopeRef(ids map[string]int64, name string) *int64 {
	if name == "" {
		return nil
	}
	id := ids[name]
	return &id
}

func negative(v *int) bool {
	return v != nil && *v < 0
}
