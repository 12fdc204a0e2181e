// Package memory holds users in process memory. It backs tests and
// local development; data is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/acquisitions-api/models"
	"github.com/upb/acquisitions-api/repositories"
)

// UserRepository is a mutex-guarded map keyed by id with an email index.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*models.CredentialRecord
	byEmail map[string]uuid.UUID
}

// NewUserRepository creates an empty repository
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[uuid.UUID]*models.CredentialRecord),
		byEmail: make(map[string]uuid.UUID),
	}
}

// FindByEmail retrieves a credential record by email
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	rec := *r.byID[id]
	return &rec, nil
}

// FindByID retrieves a user by ID
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return rec.Identity(), nil
}

// Insert creates a new user. The email check and write happen under one lock.
func (r *UserRepository) Insert(ctx context.Context, user *models.User, passwordHash string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	email := models.NormalizeEmail(user.Email)
	if _, taken := r.byEmail[email]; taken {
		return nil, repositories.ErrDuplicate
	}
	if _, taken := r.byID[user.ID]; taken {
		return nil, repositories.ErrDuplicate
	}

	rec := &models.CredentialRecord{User: *user, PasswordHash: passwordHash}
	rec.Email = email
	r.byID[user.ID] = rec
	r.byEmail[email] = user.ID
	return rec.Identity(), nil
}

// Update overwrites the mutable profile fields
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[user.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	email := models.NormalizeEmail(user.Email)
	if owner, taken := r.byEmail[email]; taken && owner != user.ID {
		return repositories.ErrDuplicate
	}

	delete(r.byEmail, rec.Email)
	user.UpdatedAt = time.Now().UTC()
	rec.Name = user.Name
	rec.Email = email
	rec.Role = user.Role
	rec.UpdatedAt = user.UpdatedAt
	r.byEmail[email] = user.ID
	return nil
}

// Delete deletes a user
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	delete(r.byEmail, rec.Email)
	delete(r.byID, id)
	return nil
}

// List retrieves users ordered by creation time
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	all := make([]*models.User, 0, len(r.byID))
	for _, rec := range r.byID {
		all = append(all, rec.Identity())
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []*models.User{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
