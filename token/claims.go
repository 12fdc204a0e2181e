package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/acquisitions-api/models"
)

var (
	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")

	// ErrInvalidClaimValue is returned when a claim has an unusable value
	ErrInvalidClaimValue = errors.New("invalid claim value")
)

// Claims is the signed claim set carried by a session token.
// The subject is the user id; exp, iat and jti are always set by the Codec.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

// ClaimsFor builds the identity claims for a user. Time-based claims are
// filled in at signing.
func ClaimsFor(user *models.User) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID.String()},
		Email:            user.Email,
		Name:             user.Name,
		Role:             string(user.Role),
	}
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	if c.Subject == "" {
		return uuid.Nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: sub: %v", ErrInvalidClaimValue, err)
	}
	return id, nil
}

// Identity builds the in-request user view from verified claims.
// Timestamps are left zero; the token does not carry them.
func (c *Claims) Identity() (*models.User, error) {
	id, err := c.UserID()
	if err != nil {
		return nil, err
	}
	if c.Role == "" {
		return nil, fmt.Errorf("%w: role", ErrMissingClaim)
	}
	role, err := models.ParseRole(c.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: role: %v", ErrInvalidClaimValue, err)
	}
	return &models.User{
		ID:    id,
		Name:  c.Name,
		Email: c.Email,
		Role:  role,
	}, nil
}

// TokenID returns the jti claim
func (c *Claims) TokenID() string {
	return c.ID
}
