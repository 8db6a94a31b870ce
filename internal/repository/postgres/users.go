package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aegisshield/aegis/internal/apperrors"
	"github.com/aegisshield/aegis/internal/models"
	"github.com/aegisshield/aegis/internal/repository"
)

type UserRepo struct {
	db DBTX
}

const userColumns = `id, username, email, password_hash, full_name, is_active, is_verified, last_login_at, created_at, updated_at`

const createUser = `-- name: CreateUser
INSERT INTO users (username, email, password_hash, full_name, is_active, is_verified)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, arg repository.CreateUserParams) (models.User, error) {
	rows, _ := r.db.Query(ctx, createUser,
		arg.Username, arg.Email, arg.PasswordHash, arg.FullName, arg.IsActive, arg.IsVerified,
	)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			return user, apperrors.ErrDuplicateUser
		}
		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	rows, _ := r.db.Query(ctx, getUserByID, id)
	return collectUser(rows)
}

const getUserByUsername = `-- name: GetUserByUsername
SELECT ` + userColumns + `
FROM users
WHERE username = $1
`

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	rows, _ := r.db.Query(ctx, getUserByUsername, username)
	return collectUser(rows)
}

const getUserByUsernameOrEmail = `-- name: GetUserByUsernameOrEmail
SELECT ` + userColumns + `
FROM users
WHERE username = $1 OR email = $1
`

func (r *UserRepo) GetUserByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (models.User, error) {
	rows, _ := r.db.Query(ctx, getUserByUsernameOrEmail, usernameOrEmail)
	return collectUser(rows)
}

const updateLastLogin = `-- name: UpdateLastLogin
UPDATE users
SET last_login_at = $2, updated_at = now()
WHERE id = $1
`

func (r *UserRepo) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.db.Exec(ctx, updateLastLogin, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

const updatePassword = `-- name: UpdatePassword
UPDATE users
SET password_hash = $2, updated_at = now()
WHERE id = $1
`

func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.db.Exec(ctx, updatePassword, id, passwordHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName,
		&u.IsActive, &u.IsVerified, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}
