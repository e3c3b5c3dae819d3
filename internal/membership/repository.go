package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/texlink/texlink/internal/shared"
)

// RepositoryPort describes persistence used by the service.
type RepositoryPort interface {
	GetCompanyUser(ctx context.Context, userID, companyID int64) (CompanyUser, error)
	ListOverrides(ctx context.Context, userID, companyID int64) ([]PermissionOverride, error)
	UpsertOverride(ctx context.Context, ov PermissionOverride) error
	DeactivateMember(ctx context.Context, userID, companyID int64) error
}

// Repository provides PostgreSQL backed persistence for memberships.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetCompanyUser(ctx context.Context, userID, companyID int64) (CompanyUser, error) {
	const q = `
		SELECT cu.user_id, cu.company_id, c.company_type, cu.company_role,
		       cu.is_company_admin, cu.is_active, cu.display_name,
		       cu.created_at, cu.updated_at
		FROM company_users cu
		JOIN companies c ON c.id = cu.company_id
		WHERE cu.user_id = $1 AND cu.company_id = $2`
	var cu CompanyUser
	err := r.pool.QueryRow(ctx, q, userID, companyID).Scan(
		&cu.UserID, &cu.CompanyID, &cu.CompanyType, &cu.Role,
		&cu.IsCompanyAdmin, &cu.IsActive, &cu.DisplayName,
		&cu.CreatedAt, &cu.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CompanyUser{}, fmt.Errorf("membership: user %d company %d: %w", userID, companyID, shared.ErrNotFound)
		}
		return CompanyUser{}, fmt.Errorf("membership: get company user: %w", err)
	}
	return cu, nil
}

func (r *Repository) ListOverrides(ctx context.Context, userID, companyID int64) ([]PermissionOverride, error) {
	const q = `
		SELECT user_id, company_id, permission, granted, created_at
		FROM permission_overrides
		WHERE user_id = $1 AND company_id = $2
		ORDER BY permission`
	rows, err := r.pool.Query(ctx, q, userID, companyID)
	if err != nil {
		return nil, fmt.Errorf("membership: list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []PermissionOverride
	for rows.Next() {
		var ov PermissionOverride
		if err := rows.Scan(&ov.UserID, &ov.CompanyID, &ov.Permission, &ov.Granted, &ov.CreatedAt); err != nil {
			return nil, fmt.Errorf("membership: scan override: %w", err)
		}
		overrides = append(overrides, ov)
	}
	return overrides, rows.Err()
}

// UpsertOverride stores an override, replacing any previous row for the same
// (user, company, permission) key.
func (r *Repository) UpsertOverride(ctx context.Context, ov PermissionOverride) error {
	const q = `
		INSERT INTO permission_overrides (user_id, company_id, permission, granted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, company_id, permission)
		DO UPDATE SET granted = EXCLUDED.granted`
	if _, err := r.pool.Exec(ctx, q, ov.UserID, ov.CompanyID, ov.Permission, ov.Granted); err != nil {
		return fmt.Errorf("membership: upsert override: %w", err)
	}
	return nil
}

func (r *Repository) DeactivateMember(ctx context.Context, userID, companyID int64) error {
	const q = `UPDATE company_users SET is_active = FALSE, updated_at = now() WHERE user_id = $1 AND company_id = $2`
	tag, err := r.pool.Exec(ctx, q, userID, companyID)
	if err != nil {
		return fmt.Errorf("membership: deactivate member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("membership: user %d company %d: %w", userID, companyID, shared.ErrNotFound)
	}
	return nil
}
