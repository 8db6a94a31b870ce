package userctx

import (
	"context"

	"github.com/aegisshield/aegis/internal/models"
)

// Identity is the authenticated principal threaded explicitly through
// the request context, never stashed in package level state.
type Identity struct {
	User models.User

	// Roles resolved fresh from the store during validation
	Roles []string

	// TokenRoles is the snapshot embedded in the presented access token.
	// Role gated endpoints are decided on this set.
	TokenRoles []string
}

type ctxKey string

const identityKey ctxKey = "identity"

// Create a new context with the identity
func New(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Extract the identity from the context
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
