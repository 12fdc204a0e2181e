package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/acquisitions-api/models"
	"github.com/upb/acquisitions-api/repositories"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// UpdateUserInput holds the optional fields of a profile update.
// Nil fields are left unchanged.
type UpdateUserInput struct {
	Name  *string
	Email *string
	Role  *models.Role
}

// UserService manages stored identities
type UserService struct {
	users  repositories.UserRepository
	txMgr  repositories.TransactionManager
	logger *zap.Logger
}

// NewUserService creates a new UserService instance
func NewUserService(repos *repositories.Repositories, logger *zap.Logger) *UserService {
	return &UserService{
		users:  repos.Users,
		txMgr:  repos.TxManager,
		logger: logger,
	}
}

// Get returns a user by id
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return user, nil
}

// List returns a page of users. Limit is clamped to [1, 200].
func (s *UserService) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return users, nil
}

// Update applies input to the user. Callers strip fields the actor may not
// change before calling.
func (s *UserService) Update(ctx context.Context, id uuid.UUID, input UpdateUserInput) (*models.User, error) {
	if input.Role != nil && !input.Role.Valid() {
		return nil, NewDomainError(ErrorTypeValidation, "invalid role", nil).
			WithDetail("role", string(*input.Role))
	}

	return WithTransactionResult(ctx, s.txMgr, func(ctx context.Context) (*models.User, error) {
		user, err := s.users.FindByID(ctx, id)
		if err != nil {
			return nil, translateRepoError(err)
		}

		if input.Name != nil {
			user.Name = *input.Name
		}
		if input.Email != nil {
			user.Email = models.NormalizeEmail(*input.Email)
		}
		if input.Role != nil {
			user.Role = *input.Role
		}

		if err := s.users.Update(ctx, user); err != nil {
			return nil, translateRepoError(err)
		}

		s.logger.Info("user updated", zap.String("user_id", id.String()))
		return user, nil
	})
}

// Delete removes a user
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return translateRepoError(err)
	}
	s.logger.Info("user deleted", zap.String("user_id", id.String()))
	return nil
}

// translateRepoError maps repository sentinels onto the domain taxonomy.
func translateRepoError(err error) error {
	var domainErr *DomainError
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, repositories.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return ErrUpstreamUnavailable.Wrap(err)
	}
}
