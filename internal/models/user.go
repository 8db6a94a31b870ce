package models

import (
	"time"
)

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	IsActive     bool
	IsVerified   bool
	LastLoginAt  *time.Time // nil until the first successful login
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountActive reports whether the user may authenticate at all.
// Both flags must be set: a deactivated or still unverified account is
// rejected before the password is even looked at.
func (u *User) AccountActive() bool {
	return u.IsActive && u.IsVerified
}
