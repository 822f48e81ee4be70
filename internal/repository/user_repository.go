package repository

import (
	"context"

	"github.com/sst-resolve/resolve-service/internal/domain"
)

// UserRepository defines persistence access for students and staff.
type UserRepository interface {
	Upsert(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	// GetIdentities resolves ids in one query; unknown ids are absent from the map.
	GetIdentities(ctx context.Context, ids []string) (map[string]domain.Identity, error)
	ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
}

type userRepository struct {
	db DBTX
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Upsert(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (id, external_id, name, email, role)
        VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), NULLIF($2, ''), $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET external_id=EXCLUDED.external_id, name=EXCLUDED.name,
            email=EXCLUDED.email, role=EXCLUDED.role, updated_at=NOW()
        RETURNING id, created_at, updated_at`

	return r.db.QueryRow(ctx, query,
		user.ID,
		user.ExternalID,
		user.Name,
		user.Email,
		user.Role,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, COALESCE(external_id, ''), name, email, role, created_at, updated_at
        FROM users WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	const query = `
        SELECT id, COALESCE(external_id, ''), name, email, role, created_at, updated_at
        FROM users WHERE external_id=$1`
	return r.fetchSingle(ctx, query, externalID)
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.ExternalID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetIdentities(ctx context.Context, ids []string) (map[string]domain.Identity, error) {
	result := make(map[string]domain.Identity, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	const query = `SELECT id, name, email FROM users WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var identity domain.Identity
		if err := rows.Scan(&identity.UserID, &identity.Name, &identity.Email); err != nil {
			return nil, err
		}
		result[identity.UserID] = identity
	}
	return result, rows.Err()
}

func (r *userRepository) ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	const query = `
        SELECT id, COALESCE(external_id, ''), name, email, role, created_at, updated_at
        FROM users WHERE role=$1 ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.ExternalID, &user.Name, &user.Email, &user.Role, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}
