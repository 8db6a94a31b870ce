package apperrors

import "fmt"

// AuthError is a member of the closed set of auth failures.
// Code is stable and machine readable, Message is for humans.
// Handlers match members with errors.Is and translate codes to HTTP statuses.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports a match for any AuthError carrying the same code
// So wrapped copies with customized messages still compare equal
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

var (
	ErrUserNotFound       = &AuthError{Code: "USER_NOT_FOUND", Message: "user not found"}
	ErrInvalidCredentials = &AuthError{Code: "INVALID_CREDENTIALS", Message: "username or password is incorrect"}
	ErrAccountInactive    = &AuthError{Code: "ACCOUNT_INACTIVE", Message: "account is deactivated or not verified"}
	ErrInvalidToken       = &AuthError{Code: "INVALID_TOKEN", Message: "token is invalid"}
	ErrExpiredToken       = &AuthError{Code: "EXPIRED_TOKEN", Message: "token is expired"}
	ErrDuplicateUser      = &AuthError{Code: "DUPLICATE_USER", Message: "user already exists"}
)

// Unexpected wraps anything that escaped the closed set above
func Unexpected(err error) *AuthError {
	return &AuthError{Code: "INTERNAL_ERROR", Message: err.Error()}
}
