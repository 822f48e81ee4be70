package repository

import (
	"context"

	"github.com/sst-resolve/resolve-service/internal/domain"
)

// CategoryRepository manages ticket domains and their scopes.
type CategoryRepository interface {
	UpsertCategory(ctx context.Context, category *domain.Category) error
	UpsertScope(ctx context.Context, scope *domain.Scope) error
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error)
	GetScope(ctx context.Context, id int64) (*domain.Scope, error)
	ListScopes(ctx context.Context, categoryID int64) ([]domain.Scope, error)
}

type categoryRepository struct {
	db DBTX
}

// NewCategoryRepository builds the repository.
func NewCategoryRepository(db DBTX) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) UpsertCategory(ctx context.Context, category *domain.Category) error {
	const query = `
        INSERT INTO categories (name, slug, description, is_active)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (slug) DO UPDATE SET name=EXCLUDED.name, description=EXCLUDED.description,
            is_active=EXCLUDED.is_active, updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		category.Name,
		category.Slug,
		category.Description,
		category.IsActive,
	).Scan(&category.ID, &category.CreatedAt, &category.UpdatedAt)
}

func (r *categoryRepository) UpsertScope(ctx context.Context, scope *domain.Scope) error {
	const query = `
        INSERT INTO scopes (category_id, name, is_active)
        VALUES ($1,$2,$3)
        ON CONFLICT (category_id, name) DO UPDATE SET is_active=EXCLUDED.is_active, updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		scope.CategoryID,
		scope.Name,
		scope.IsActive,
	).Scan(&scope.ID, &scope.CreatedAt, &scope.UpdatedAt)
}

func (r *categoryRepository) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	const query = `
        SELECT id, name, slug, description, is_active, created_at, updated_at
        FROM categories WHERE id=$1`
	return r.fetchCategory(ctx, query, id)
}

func (r *categoryRepository) GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	const query = `
        SELECT id, name, slug, description, is_active, created_at, updated_at
        FROM categories WHERE slug=$1`
	return r.fetchCategory(ctx, query, slug)
}

func (r *categoryRepository) fetchCategory(ctx context.Context, query string, arg any) (*domain.Category, error) {
	var category domain.Category
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&category.ID,
		&category.Name,
		&category.Slug,
		&category.Description,
		&category.IsActive,
		&category.CreatedAt,
		&category.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *categoryRepository) GetScope(ctx context.Context, id int64) (*domain.Scope, error) {
	const query = `
        SELECT id, category_id, name, is_active, created_at, updated_at
        FROM scopes WHERE id=$1`
	var scope domain.Scope
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&scope.ID,
		&scope.CategoryID,
		&scope.Name,
		&scope.IsActive,
		&scope.CreatedAt,
		&scope.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &scope, nil
}

func (r *categoryRepository) ListScopes(ctx context.Context, categoryID int64) ([]domain.Scope, error) {
	const query = `
        SELECT id, category_id, name, is_active, created_at, updated_at
        FROM scopes WHERE category_id=$1 ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Scope
	for rows.Next() {
		var scope domain.Scope
		if err := rows.Scan(&scope.ID, &scope.CategoryID, &scope.Name, &scope.IsActive, &scope.CreatedAt, &scope.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, scope)
	}
	return result, rows.Err()
}
