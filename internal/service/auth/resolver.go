package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/aegisshield/aegis/internal/repository"
)

// RoleResolver answers which role names are currently active for a user.
// It is consulted fresh on every login, refresh and validation: grants
// may be revoked or expire between calls, so results are never cached.
type RoleResolver struct {
	roles repository.RoleRepo
}

func NewRoleResolver(roles repository.RoleRepo) RoleResolver {
	return RoleResolver{roles: roles}
}

// ActiveRoleNames loads all grants for the user, drops the expired ones
// and returns the remaining role names deduplicated.
// A user without grants gets an empty slice, never nil and never an error.
func (r RoleResolver) ActiveRoleNames(ctx context.Context, userID int64) ([]string, error) {
	grants, err := r.roles.ListGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error while loading role grants. Err: %w", err)
	}

	now := time.Now()
	names := make([]string, 0, len(grants))
	seen := make(map[string]struct{}, len(grants))

	for _, g := range grants {
		if g.Expired(now) {
			continue
		}
		if _, ok := seen[g.RoleName]; ok {
			continue
		}
		seen[g.RoleName] = struct{}{}
		names = append(names, g.RoleName)
	}

	return names, nil
}
