package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/acquisitions-api/models"
)

// Quotas is the per-role admission table for one window
type Quotas struct {
	Guest int `json:"guest"`
	User  int `json:"user"`
	Admin int `json:"admin"`
}

// For returns the quota of role's tier. Unknown roles get the guest quota.
func (q Quotas) For(role models.Role) int {
	switch role {
	case models.RoleAdmin:
		return q.Admin
	case models.RoleUser:
		return q.User
	default:
		return q.Guest
	}
}

// Validate requires positive quotas that never decrease with the tier.
func (q Quotas) Validate() error {
	if q.Guest <= 0 || q.User <= 0 || q.Admin <= 0 {
		return fmt.Errorf("quotas must be positive: guest=%d user=%d admin=%d", q.Guest, q.User, q.Admin)
	}
	if q.Guest > q.User || q.User > q.Admin {
		return fmt.Errorf("quotas must satisfy guest <= user <= admin: guest=%d user=%d admin=%d", q.Guest, q.User, q.Admin)
	}
	return nil
}

// Limiter applies a role's quota to a subject's window in a Store
type Limiter struct {
	store  Store
	window time.Duration
	quotas Quotas
	now    func() time.Time
}

// LimiterOption configures a Limiter
type LimiterOption func(*Limiter)

// WithClock overrides the limiter's time source
func WithClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates a limiter. The quota table is read-only afterwards.
func NewLimiter(store Store, window time.Duration, quotas Quotas, opts ...LimiterOption) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("rate limit store is required")
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %s", window)
	}
	if err := quotas.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		store:  store,
		window: window,
		quotas: quotas,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check admits or rejects one request from key at role's tier
func (l *Limiter) Check(ctx context.Context, key string, role models.Role) (Result, error) {
	limit := l.quotas.For(role)
	res, err := l.store.Allow(ctx, key, limit, l.window, l.now())
	if err != nil {
		return Result{Allowed: false, Limit: limit}, fmt.Errorf("rate limit store: %w", err)
	}
	return res, nil
}

// Window returns the sliding window length
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Quotas returns the quota table
func (l *Limiter) Quotas() Quotas {
	return l.quotas
}
