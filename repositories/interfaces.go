package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/acquisitions-api/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	// The store's constraint is the source of truth for email uniqueness.
	ErrDuplicate = errors.New("duplicate record")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// The context passed to fn carries the transaction so repositories
	// called with it join the transaction.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// UserRepository persists identities and their credential hashes.
// Emails are stored normalised; lookups are case-insensitive.
type UserRepository interface {
	// FindByEmail returns the credential record for an email or ErrNotFound
	FindByEmail(ctx context.Context, email string) (*models.CredentialRecord, error)

	// FindByID returns the user or ErrNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// Insert stores a new user with its password hash. ErrDuplicate on a taken email.
	Insert(ctx context.Context, user *models.User, passwordHash string) (*models.User, error)

	// Update overwrites name, email and role. ErrNotFound or ErrDuplicate.
	Update(ctx context.Context, user *models.User) error

	// Delete removes a user or returns ErrNotFound
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns users ordered by creation time
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// Repositories holds the stores the services need. TxManager is nil for
// adapters without transactions.
type Repositories struct {
	Users     UserRepository
	TxManager TransactionManager
}
