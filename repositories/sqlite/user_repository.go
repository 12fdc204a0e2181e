// Package sqlite stores users in an embedded SQLite database for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/acquisitions-api/models"
	"github.com/upb/acquisitions-api/repositories"
	"go.uber.org/zap"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'user',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_created_at ON users (created_at);
`

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// scanUser reads id, name, email, role, [hash,] created_at, updated_at.
func scanUser(row interface{ Scan(...interface{}) error }, withHash bool) (*models.CredentialRecord, error) {
	var (
		rec              models.CredentialRecord
		id, created, upd string
	)
	dest := []interface{}{&id, &rec.Name, &rec.Email, &rec.Role}
	if withHash {
		dest = append(dest, &rec.PasswordHash)
	}
	dest = append(dest, &created, &upd)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt user id %q: %w", id, err)
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("corrupt created_at %q: %w", created, err)
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, upd); err != nil {
		return nil, fmt.Errorf("corrupt updated_at %q: %w", upd, err)
	}
	return &rec, nil
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a private in-memory database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return db, nil
}

// UserRepository implements repositories.UserRepository on SQLite
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// FindByEmail retrieves a credential record by email
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.CredentialRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, password_hash, created_at, updated_at
		FROM users WHERE email = ?`, models.NormalizeEmail(email))

	rec, err := scanUser(row, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return rec, nil
}

// FindByID retrieves a user by ID
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, created_at, updated_at
		FROM users WHERE id = ?`, id.String())

	rec, err := scanUser(row, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return rec.Identity(), nil
}

// Insert creates a new user
func (r *UserRepository) Insert(ctx context.Context, user *models.User, passwordHash string) (*models.User, error) {
	created := *user
	created.Email = models.NormalizeEmail(user.Email)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		created.ID.String(), created.Name, created.Email, passwordHash, string(created.Role),
		formatTime(created.CreatedAt), formatTime(created.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repositories.ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created", zap.String("id", created.ID.String()))
	return &created, nil
}

// Update overwrites the mutable profile fields
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET name = ?, email = ?, role = ?, updated_at = ?
		WHERE id = ?`,
		user.Name, models.NormalizeEmail(user.Email), string(user.Role), formatTime(user.UpdatedAt), user.ID.String())
	if err != nil {
		if isUniqueViolation(err) {
			return repositories.ErrDuplicate
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectOneRow(result)
}

// Delete deletes a user
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectOneRow(result)
}

// List retrieves users ordered by creation time
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, role, created_at, updated_at
		FROM users ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		rec, err := scanUser(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, rec.Identity())
	}
	return users, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
