package services

import (
	"context"
	"errors"

	"github.com/upb/acquisitions-api/models"
	"github.com/upb/acquisitions-api/repositories"
	"go.uber.org/zap"
)

// RegisterInput carries the fields of a sign-up request. Role is honored
// only when Caller is an admin; otherwise it is dropped.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
	Caller   *models.User
}

// CredentialService verifies and registers credentials against the user store.
type CredentialService struct {
	users  repositories.UserRepository
	txMgr  repositories.TransactionManager
	hasher Hasher
	logger *zap.Logger
}

// NewCredentialService creates a new CredentialService instance.
// txMgr may be nil.
func NewCredentialService(repos *repositories.Repositories, hasher Hasher, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		users:  repos.Users,
		txMgr:  repos.TxManager,
		hasher: hasher,
		logger: logger,
	}
}

// Authenticate looks up the record for email and compares password against
// its hash. It returns the identity without the hash. It never writes.
func (s *CredentialService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	record, err := s.users.FindByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrUpstreamUnavailable.Wrap(err)
	}

	ok, err := s.hasher.Compare(ctx, password, record.PasswordHash)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error("stored password hash is unusable",
			zap.String("user_id", record.ID.String()),
			zap.Error(err))
		return nil, ErrInternal.Wrap(err)
	}
	if !ok {
		return nil, ErrInvalidCredential
	}

	return record.Identity(), nil
}

// Register creates a new identity. The email lookup runs before hashing;
// the store's unique constraint is the final guard, and a duplicate it
// reports also yields ErrAlreadyExists.
func (s *CredentialService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	role := models.RoleUser
	if input.Role != "" && input.Role != models.RoleUser {
		if input.Caller != nil && input.Caller.IsAdmin() {
			if !input.Role.Valid() {
				return nil, NewDomainError(ErrorTypeValidation, "invalid role", nil).
					WithDetail("role", string(input.Role))
			}
			role = input.Role
		} else {
			s.logger.Debug("ignoring role requested by non-admin sign-up",
				zap.String("requested_role", string(input.Role)))
		}
	}

	user := models.NewUser(input.Name, input.Email, role)

	// Reject taken emails before paying for the hash.
	if _, err := s.users.FindByEmail(ctx, user.Email); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUpstreamUnavailable.Wrap(err)
	}

	hash, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, WrapInternal("failed to hash password", err)
	}

	created, err := WithTransactionResult(ctx, s.txMgr, func(ctx context.Context) (*models.User, error) {
		created, err := s.users.Insert(ctx, user, hash)
		if err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return nil, ErrAlreadyExists
			}
			return nil, ErrUpstreamUnavailable.Wrap(err)
		}
		return created, nil
	})
	if err != nil {
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			err = ErrUpstreamUnavailable.Wrap(err)
		}
		return nil, err
	}

	s.logger.Info("user registered",
		zap.String("user_id", created.ID.String()),
		zap.String("role", created.Role.String()))

	return created, nil
}
