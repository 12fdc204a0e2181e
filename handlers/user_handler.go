package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/acquisitions-api/middleware"
	"github.com/upb/acquisitions-api/models"
	"github.com/upb/acquisitions-api/services"
	"github.com/upb/acquisitions-api/utils"
	"go.uber.org/zap"
)

// UpdateUserRequest represents a partial user update. Role is ignored for
// non-admin callers.
type UpdateUserRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=2,max=255"`
	Email *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Role  *string `json:"role,omitempty" validate:"omitempty,oneof=guest user admin"`
}

// UserListResponse is the body of GET /api/users
type UserListResponse struct {
	Users  []*models.User `json:"users"`
	Count  int            `json:"count"`
	Offset int            `json:"offset"`
}

// UserManager defines the user operations the user endpoints need
type UserManager interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Update(ctx context.Context, id uuid.UUID, input services.UpdateUserInput) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserHandler handles user-related HTTP requests. Access checks run in the
// pipeline before these handlers.
type UserHandler struct {
	users  UserManager
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users UserManager, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
	}
}

// HandleList handles GET /api/users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		HandleServiceError(w, invalidParam("limit", "must be a non-negative integer"), h.logger)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		HandleServiceError(w, invalidParam("offset", "must be a non-negative integer"), h.logger)
		return
	}

	users, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, UserListResponse{
		Users:  users,
		Count:  len(users),
		Offset: offset,
	}, "")
}

// HandleMe handles GET /api/users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		HandleServiceError(w, services.ErrUnauthorized, h.logger)
		return
	}

	user, err := h.users.Get(r.Context(), caller.ID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, user, "")
}

// HandleGet handles GET /api/users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, user, "")
}

// HandleUpdate handles PUT /api/users/{id}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	input := services.UpdateUserInput{Name: req.Name, Email: req.Email}
	if req.Role != nil {
		caller, _ := middleware.IdentityFromContext(ctx)
		if caller != nil && caller.IsAdmin() {
			role := models.Role(*req.Role)
			input.Role = &role
		} else {
			h.logger.Debug("dropping role from non-admin update",
				zap.String("request_id", requestID),
				zap.String("user_id", id.String()))
		}
	}

	user, err := h.users.Update(ctx, id, input)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("user updated",
		zap.String("request_id", requestID),
		zap.String("user_id", user.ID.String()))

	_ = utils.WriteOK(w, user, "User updated")
}

// HandleDelete handles DELETE /api/users/{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("user deleted",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("user_id", id.String()))

	_ = utils.WriteOK(w, nil, "User deleted")
}

func (h *UserHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, invalidParam("id", "must be a valid UUID"), h.logger)
		return uuid.Nil, false
	}
	return id, true
}

func invalidParam(name, reason string) error {
	return services.ErrInvalidInput.Wrap(nil).WithDetail(name, reason)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
