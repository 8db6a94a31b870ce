package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aegisshield/aegis/internal/models"
)

// ErrRoleNotFound is an infrastructure failure, not a member of the
// user facing auth taxonomy: roles referenced by code must exist
var ErrRoleNotFound = errors.New("role not found")

type CreateUserParams struct {
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	IsActive     bool
	IsVerified   bool
}

// User repository interface
// Lookups must return apperrors.ErrUserNotFound for missing users and
// CreateUser must return apperrors.ErrDuplicateUser on username or email conflict
type UserRepo interface {
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)

	// Single lookup for the login flow: the presented identifier may be
	// either the username or the email
	GetUserByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (models.User, error)

	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

type AssignRoleParams struct {
	UserID     int64
	RoleID     int64
	AssignedBy *int64
	ExpiresAt  *time.Time
}

// Role repository interface
// Grants are owned by user management, the auth core only reads them.
// AssignRole upserts: re-assigning an existing grant replaces its expiry.
type RoleRepo interface {
	GetRoleByName(ctx context.Context, name string) (models.Role, error)
	ListGrants(ctx context.Context, userID int64) ([]models.RoleGrant, error)
	AssignRole(ctx context.Context, arg AssignRoleParams) error
}

type Storage interface {
	User() UserRepo
	Role() RoleRepo

	// Run fn within a database transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}
