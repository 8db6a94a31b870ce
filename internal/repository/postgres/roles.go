package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aegisshield/aegis/internal/models"
	"github.com/aegisshield/aegis/internal/repository"
)

type RoleRepo struct {
	db DBTX
}

const getRoleByName = `-- name: GetRoleByName
SELECT id, name, display_name, description, is_active, is_system, created_at
FROM roles
WHERE name = $1
`

func (r *RoleRepo) GetRoleByName(ctx context.Context, name string) (models.Role, error) {
	rows, _ := r.db.Query(ctx, getRoleByName, name)
	role, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.Role, error) {
		var ro models.Role
		err := row.Scan(&ro.ID, &ro.Name, &ro.DisplayName, &ro.Description, &ro.IsActive, &ro.IsSystem, &ro.CreatedAt)
		return ro, err
	})

	switch {
	case err == nil:
		return role, nil
	case errors.Is(err, pgx.ErrNoRows):
		return role, repository.ErrRoleNotFound
	default:
		return role, fmt.Errorf("db error: %w", err)
	}
}

const listGrants = `-- name: ListGrants
SELECT ur.user_id, ur.role_id, r.name, ur.assigned_at, ur.assigned_by, ur.expires_at
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = $1
ORDER BY r.name
`

// ListGrants returns every grant for the user, expired ones included.
// Expiry filtering is an authorization decision and belongs to the resolver.
func (r *RoleRepo) ListGrants(ctx context.Context, userID int64) ([]models.RoleGrant, error) {
	rows, _ := r.db.Query(ctx, listGrants, userID)
	grants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RoleGrant, error) {
		var g models.RoleGrant
		err := row.Scan(&g.UserID, &g.RoleID, &g.RoleName, &g.AssignedAt, &g.AssignedBy, &g.ExpiresAt)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return grants, nil
}

const assignRole = `-- name: AssignRole
INSERT INTO user_roles (user_id, role_id, assigned_by, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, role_id) DO UPDATE
SET assigned_by = EXCLUDED.assigned_by, expires_at = EXCLUDED.expires_at
`

func (r *RoleRepo) AssignRole(ctx context.Context, arg repository.AssignRoleParams) error {
	_, err := r.db.Exec(ctx, assignRole, arg.UserID, arg.RoleID, arg.AssignedBy, arg.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
