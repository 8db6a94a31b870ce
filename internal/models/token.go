package models

import (
	"time"
)

// IssuedToken is a signed token string with its expiration instant
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenBundle is returned to the caller after login or refresh.
// On refresh the Refresh field carries the original token unchanged.
type TokenBundle struct {
	Access  IssuedToken
	Refresh string
	User    User
	Roles   []string
}

// AuthOutcome is the result of validating a bearer token.
// An absent or rejected token yields Valid=false with the zero User,
// it never carries an error.
type AuthOutcome struct {
	Valid bool
	User  User
	Roles []string
}
