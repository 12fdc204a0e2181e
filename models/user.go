package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the sole authorization axis. Roles are ordered: guest < user < admin.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Rank returns the position of the role in the tier ordering.
// Unknown roles rank below guest.
func (r Role) Rank() int {
	switch r {
	case RoleGuest:
		return 0
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	default:
		return -1
	}
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	return r.Rank() >= 0
}

// AtLeast reports whether r is the same tier as other or above it.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && r.Rank() >= other.Rank()
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a string into a Role, case-insensitively.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

// User is an authenticated principal. It is the only user shape ever
// serialised to clients.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance with a fresh id.
func NewUser(name, email string, role Role) *User {
	now := time.Now().UTC()
	return &User{
		ID:        uuid.New(),
		Name:      name,
		Email:     NormalizeEmail(email),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsAdmin returns true if the user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CredentialRecord is a user plus the salted hash of their password.
// It never leaves the persistence and credential layers.
type CredentialRecord struct {
	User
	PasswordHash string `json:"-" db:"password_hash"`
}

// Identity returns a copy of the record's user without the hash.
func (c *CredentialRecord) Identity() *User {
	u := c.User
	return &u
}

// NormalizeEmail trims and lower-cases an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
