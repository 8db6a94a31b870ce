package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/aegisshield/aegis/internal/apperrors"
	"github.com/aegisshield/aegis/internal/handlers/render"
	"github.com/aegisshield/aegis/internal/handlers/userctx"
	"github.com/aegisshield/aegis/internal/models"
)

type authService interface {
	Validate(ctx context.Context, bearerToken string) models.AuthOutcome
	TokenRoles(bearerToken string) ([]string, error)
}

// BearerToken extracts the token from the Authorization header.
// Returns empty string when the header is absent or not a Bearer scheme.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

// Auth authenticates the request's bearer token and threads the
// identity through the request context.
// Rejected or absent tokens end the request with 401.
func Auth(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)

			outcome := as.Validate(r.Context(), token)
			if !outcome.Valid {
				render.AuthError(w, apperrors.ErrInvalidToken, http.StatusUnauthorized)
				return
			}

			tokenRoles, err := as.TokenRoles(token)
			if err != nil {
				render.AuthError(w, apperrors.ErrInvalidToken, http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), userctx.Identity{
				User:       outcome.User,
				Roles:      outcome.Roles,
				TokenRoles: tokenRoles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates an endpoint on a role name.
// The decision is made on the role snapshot embedded in the validated
// token, not on a fresh store lookup. Must be chained after Auth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := userctx.FromContext(r.Context())
			if !ok {
				render.AuthError(w, apperrors.ErrInvalidToken, http.StatusUnauthorized)
				return
			}

			if !slices.Contains(id.TokenRoles, role) {
				render.JSONWithStatus(w, render.ErrorResponse{
					Error:   "ACCESS_DENIED",
					Message: "insufficient privileges",
				}, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
