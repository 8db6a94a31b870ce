package models

import (
	"time"
)

type Role struct {
	ID          int64
	Name        string
	DisplayName string
	Description string
	IsActive    bool
	IsSystem    bool
	CreatedAt   time.Time
}

// RoleGrant is a time bounded assignment of a role to a user
type RoleGrant struct {
	UserID     int64
	RoleID     int64
	RoleName   string
	AssignedAt time.Time
	AssignedBy *int64
	ExpiresAt  *time.Time // nil means the grant never expires
}

// Expired reports whether the grant must be ignored for authorization.
// A grant expiring exactly now is already expired.
func (g *RoleGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}
