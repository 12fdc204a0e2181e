package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/acquisitions-api/models"
)

var (
	// ErrInvalidToken is returned for every verification failure.
	// One of the reason errors below is always wrapped alongside it.
	ErrInvalidToken = errors.New("invalid token")

	ErrExpired   = errors.New("token expired")
	ErrMalformed = errors.New("token malformed")
	ErrSignature = errors.New("token signature mismatch")
	ErrClaims    = errors.New("token claims rejected")
)

const signingAlg = "HS256"

// Codec signs and verifies HS256 session tokens with one process-wide secret.
// It is immutable after construction and safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures a Codec
type Option func(*Codec)

// WithClock overrides the time source used for iat, exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a codec. The issuer is optional; when set it is stamped
// on signed tokens and required on verification.
func NewCodec(secret string, ttl time.Duration, issuer string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	c := &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured token lifetime
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Sign issues a token for the user and returns it with its expiry.
func (c *Codec) Sign(user *models.User) (string, time.Time, error) {
	return c.SignClaims(ClaimsFor(user))
}

// SignClaims stamps iat, exp, jti and iss onto claims and signs them.
func (c *Codec) SignClaims(claims Claims) (string, time.Time, error) {
	now := c.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	claims.ID = uuid.NewString()
	if c.issuer != "" {
		claims.Issuer = c.issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks signature, structure and expiry. A token presented at
// exactly its exp instant is expired.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingAlg}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrInvalidToken, classify(err), err)
	}

	if _, err := claims.Identity(); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrInvalidToken, ErrClaims, err)
	}

	return claims, nil
}

// Sign signs claims with secret and ttl using a throwaway codec.
func Sign(claims Claims, secret string, ttl time.Duration) (string, error) {
	c, err := NewCodec(secret, ttl, "")
	if err != nil {
		return "", err
	}
	signed, _, err := c.SignClaims(claims)
	return signed, err
}

// Verify verifies a token against secret without an issuer requirement.
func Verify(tokenString, secret string) (*Claims, error) {
	c := &Codec{secret: []byte(secret), now: time.Now}
	return c.Verify(tokenString)
}

// Reason names the failure class of a verification error for logs.
// It must never be sent to clients.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrSignature):
		return "signature"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrClaims):
		return "claims"
	default:
		return "invalid"
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return ErrClaims
	}
}
