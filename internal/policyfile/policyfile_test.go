package policyfile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sst-resolve/resolve-service/internal/repository/memory"
	"github.com/sst-resolve/resolve-service/internal/sla"
)

const hostelPolicy = `
users:
  - id: warden-general
    name: General Warden
    email: general@example.edu
    role: ADMIN
  - id: warden-a
    name: Block A Warden
    email: a@example.edu
    role: ADMIN
  - id: chief
    name: Chief Warden
    email: chief@example.edu
    role: SUPER_ADMIN
categories:
  - slug: hostel
    name: Hostel
    scopes: [Block A, Block B]
    budgets:
      - ack_hours: 24
        resolution_hours: 72
      - scope: Block A
        resolution_hours: 48
    rules:
      - level: 1
        user_id: warden-general
      - scope: Block A
        level: 1
        user_id: warden-a
      - level: 2
        user_id: chief
`

func TestParse_Valid(t *testing.T) {
	f, err := Parse([]byte(hostelPolicy))
	require.NoError(t, err)
	require.Len(t, f.Users, 3)
	require.Len(t, f.Categories, 1)
	assert.Equal(t, []string{"Block A", "Block B"}, f.Categories[0].Scopes)
	require.NotNil(t, f.Categories[0].Budgets[1].ResolutionHours)
	assert.Nil(t, f.Categories[0].Budgets[1].AckHours)
}

func TestParse_ReportsEveryProblem(t *testing.T) {
	doc := `
users:
  - id: ""
    role: janitor
categories:
  - slug: hostel
    name: Hostel
    budgets:
      - scope: Block Z
        ack_hours: -1
    rules:
      - level: 0
  - slug: hostel
    name: Again
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "invalid policy file: ")
	for _, want := range []string{
		"users[0]: id is required",
		`users[0]: unknown role "janitor"`,
		`categories[0].budgets[0]: unknown scope "Block Z"`,
		"categories[0].budgets[0]: hours must not be negative",
		"categories[0].rules[0]: level must be at least 1",
		"categories[0].rules[0]: user_id is required",
		`categories[1]: duplicate slug "hostel"`,
	} {
		assert.Contains(t, msg, want)
	}

	_, err = Parse([]byte("users: {"))
	assert.ErrorContains(t, err, "decode policy file")
}

func TestApply_FeedsResolver(t *testing.T) {
	f, err := Parse([]byte(hostelPolicy))
	require.NoError(t, err)
	store := memory.NewStore(nil)
	ctx := context.Background()

	report, err := f.Apply(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, Report{Users: 3, Categories: 1, Scopes: 2, Budgets: 2, Rules: 3}, report)

	repos := store.Repositories()
	hostel, err := repos.Categories.GetCategoryBySlug(ctx, "hostel")
	require.NoError(t, err)
	scopes, err := repos.Categories.ListScopes(ctx, hostel.ID)
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	blockA := scopes[0].ID
	require.Equal(t, "Block A", scopes[0].Name)

	resolver := sla.NewResolver(repos.Rules, repos.Users, nil, nil)
	policy, err := resolver.Resolve(ctx, hostel.ID, &blockA)
	require.NoError(t, err)
	assert.Nil(t, policy.AckHours)
	require.NotNil(t, policy.ResolutionHours)
	assert.Equal(t, 48, *policy.ResolutionHours)
	require.Len(t, policy.Chain, 2)
	assert.Equal(t, "warden-a", policy.Chain[0].Identity.UserID)
	assert.Equal(t, "chief", policy.Chain[1].Identity.UserID)

	again, err := f.Apply(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, report, again)
	rules, err := repos.Rules.ListRules(ctx, hostel.ID, &blockA)
	require.NoError(t, err)
	assert.Len(t, rules, 3, "re-applying replaces rules in place")
}

func TestApply_UnknownUserRollsBack(t *testing.T) {
	doc := `
categories:
  - slug: mess
    name: Mess
    rules:
      - level: 1
        user_id: nobody
`
	f, err := Parse([]byte(doc))
	require.NoError(t, err)
	store := memory.NewStore(nil)

	_, err = f.Apply(context.Background(), store)
	assert.EqualError(t, err, `rule references unknown user "nobody"`)

	_, err = store.Repositories().Categories.GetCategoryBySlug(context.Background(), "mess")
	assert.Error(t, err, "the category insert is rolled back")
}
