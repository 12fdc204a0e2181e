package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/acquisitions-api/auth"
	"github.com/upb/acquisitions-api/middleware"
	"github.com/upb/acquisitions-api/models"
	"github.com/upb/acquisitions-api/services"
	"github.com/upb/acquisitions-api/utils"
	"go.uber.org/zap"
)

// SignUpRequest represents a sign-up payload. Role is honored only when an
// admin is signed in.
type SignUpRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=guest user admin"`
}

// SignInRequest represents a sign-in payload
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// SessionResponse is the body of a successful sign-up or sign-in
type SessionResponse struct {
	User      *models.User `json:"user"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

// CredentialVerifier defines the credential operations the auth endpoints need
type CredentialVerifier interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	Register(ctx context.Context, input services.RegisterInput) (*models.User, error)
}

// TokenSigner issues session tokens. *token.Codec implements it.
type TokenSigner interface {
	Sign(user *models.User) (string, time.Time, error)
}

// AuthHandler handles sign-up, sign-in and sign-out
type AuthHandler struct {
	credentials CredentialVerifier
	signer      TokenSigner
	carrier     *auth.SessionCarrier
	logger      *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(credentials CredentialVerifier, signer TokenSigner, carrier *auth.SessionCarrier, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		credentials: credentials,
		signer:      signer,
		carrier:     carrier,
		logger:      logger,
	}
}

// HandleSignUp handles POST /api/auth/sign-up
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req SignUpRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.logger.Warn("failed to parse sign-up body",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	caller, _ := middleware.IdentityFromContext(ctx)
	user, err := h.credentials.Register(ctx, services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.Role(req.Role),
		Caller:   caller,
	})
	if err != nil {
		h.logger.Info("sign-up rejected",
			zap.String("request_id", requestID),
			zap.String("reason", string(services.GetErrorType(err))))
		HandleServiceError(w, err, h.logger)
		return
	}

	// An admin creating an account keeps their own session.
	if caller != nil && caller.IsAdmin() {
		h.logger.Info("user registered by admin",
			zap.String("request_id", requestID),
			zap.String("user_id", user.ID.String()),
			zap.String("admin_id", caller.ID.String()),
			zap.String("role", user.Role.String()))
		_ = utils.WriteCreated(w, SessionResponse{User: user}, "User registered")
		return
	}

	expiresAt, ok := h.issue(w, user, requestID)
	if !ok {
		return
	}

	h.logger.Info("user registered",
		zap.String("request_id", requestID),
		zap.String("user_id", user.ID.String()),
		zap.String("role", user.Role.String()))

	_ = utils.WriteCreated(w, SessionResponse{User: user, ExpiresAt: &expiresAt}, "User registered")
}

// HandleSignIn handles POST /api/auth/sign-in. Unknown emails and wrong
// passwords get the same response.
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req SignInRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	user, err := h.credentials.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if services.IsNotFoundError(err) || services.IsInvalidCredentialError(err) {
			h.logger.Info("sign-in failed",
				zap.String("request_id", requestID),
				zap.String("reason", string(services.GetErrorType(err))))
			err = services.ErrInvalidCredential
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	expiresAt, ok := h.issue(w, user, requestID)
	if !ok {
		return
	}

	h.logger.Info("user signed in",
		zap.String("request_id", requestID),
		zap.String("user_id", user.ID.String()))

	_ = utils.WriteOK(w, SessionResponse{User: user, ExpiresAt: &expiresAt}, "User signed in")
}

// HandleSignOut handles POST /api/auth/sign-out. It always succeeds; the
// token itself stays valid until it expires.
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	h.carrier.Clear(w)
	if user, ok := middleware.IdentityFromContext(r.Context()); ok {
		h.logger.Info("user signed out",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("user_id", user.ID.String()))
	}
	_ = utils.WriteOK(w, nil, "User signed out")
}

func (h *AuthHandler) issue(w http.ResponseWriter, user *models.User, requestID string) (time.Time, bool) {
	signed, expiresAt, err := h.signer.Sign(user)
	if err != nil {
		h.logger.Error("failed to sign session token",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, services.ErrInternal.Wrap(err), h.logger)
		return time.Time{}, false
	}
	h.carrier.Attach(w, signed)
	return expiresAt, true
}
