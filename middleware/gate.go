package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/acquisitions-api/auth"
	"github.com/upb/acquisitions-api/models"
	"github.com/upb/acquisitions-api/services"
	"github.com/upb/acquisitions-api/token"
	"go.uber.org/zap"
)

// TokenVerifier verifies a session token. *token.Codec implements it.
type TokenVerifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// Gate resolves the caller's identity from the session cookie
type Gate struct {
	carrier  *auth.SessionCarrier
	verifier TokenVerifier
	logger   *zap.Logger
}

// NewGate creates a new Gate
func NewGate(carrier *auth.SessionCarrier, verifier TokenVerifier, logger *zap.Logger) *Gate {
	return &Gate{
		carrier:  carrier,
		verifier: verifier,
		logger:   logger,
	}
}

// Authenticate requires a valid session. The verified identity is attached
// to the request context.
func (g *Gate) Authenticate() Stage {
	return Named("authenticate", StageFunc(func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		user, reason := g.identify(r)
		if user == nil {
			g.logger.Warn("authentication failed",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("reason", reason))
			return nil, services.ErrUnauthorized
		}
		return r.WithContext(WithIdentity(r.Context(), user)), nil
	}))
}

// OptionalAuthenticate attaches an identity when the request carries a valid
// session and lets the request through either way.
func (g *Gate) OptionalAuthenticate() Stage {
	return Named("optional_authenticate", StageFunc(func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		user, reason := g.identify(r)
		if user == nil {
			if reason != "missing" {
				g.logger.Debug("ignoring invalid session",
					zap.String("request_id", GetRequestIDFromContext(r.Context())),
					zap.String("reason", reason))
			}
			return r, nil
		}
		return r.WithContext(WithIdentity(r.Context(), user)), nil
	}))
}

// Identify returns the identity carried by r without touching the context.
// ok is false when the session is missing or invalid.
func (g *Gate) Identify(r *http.Request) (*models.User, bool) {
	user, _ := g.identify(r)
	return user, user != nil
}

func (g *Gate) identify(r *http.Request) (*models.User, string) {
	raw, ok := g.carrier.Read(r)
	if !ok {
		return nil, "missing"
	}
	claims, err := g.verifier.Verify(raw)
	if err != nil {
		return nil, token.Reason(err)
	}
	user, err := claims.Identity()
	if err != nil {
		return nil, "claims"
	}
	return user, ""
}

// RequireRole admits callers holding one of roles
func RequireRole(roles ...models.Role) Stage {
	return Named("require_role", StageFunc(func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		user, ok := IdentityFromContext(r.Context())
		if !ok {
			return nil, services.ErrUnauthorized
		}
		if !hasRole(user, roles) {
			return nil, services.ErrForbidden
		}
		return r, nil
	}))
}

// RequireSelfOrRole admits the caller when the URL parameter param names
// their own id, or when they hold one of roles.
func RequireSelfOrRole(param string, roles ...models.Role) Stage {
	return Named("require_self_or_role", StageFunc(func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		user, ok := IdentityFromContext(r.Context())
		if !ok {
			return nil, services.ErrUnauthorized
		}
		if isSelf(r, param, user) || hasRole(user, roles) {
			return r, nil
		}
		return nil, services.ErrForbidden
	}))
}

// DenySelf rejects requests whose URL parameter param names the caller
func DenySelf(param string) Stage {
	return Named("deny_self", StageFunc(func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		user, ok := IdentityFromContext(r.Context())
		if !ok {
			return nil, services.ErrUnauthorized
		}
		if isSelf(r, param, user) {
			return nil, services.ErrCannotDeleteSelf
		}
		return r, nil
	}))
}

func hasRole(user *models.User, roles []models.Role) bool {
	for _, role := range roles {
		if user.Role == role {
			return true
		}
	}
	return false
}

func isSelf(r *http.Request, param string, user *models.User) bool {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return false
	}
	return id == user.ID
}
