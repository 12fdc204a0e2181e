package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/acquisitions-api/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// IdentityKey is the context key for the authenticated user
	IdentityKey contextKey = "identity"
)

// WithIdentity adds the authenticated user to the context
func WithIdentity(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, IdentityKey, user)
}

// IdentityFromContext retrieves the authenticated user from context
func IdentityFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(IdentityKey).(*models.User)
	return user, ok && user != nil
}

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}
