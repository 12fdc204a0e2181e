package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/acquisitions-api/models"
	"go.uber.org/zap"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	args := m.Called(ctx, key, limit, window, now)
	return args.Get(0).(Result), args.Error(1)
}

func TestQuotas_For(t *testing.T) {
	q := Quotas{Guest: 5, User: 10, Admin: 20}

	assert.Equal(t, 5, q.For(models.RoleGuest))
	assert.Equal(t, 10, q.For(models.RoleUser))
	assert.Equal(t, 20, q.For(models.RoleAdmin))
	assert.Equal(t, 5, q.For(models.Role("unknown")))
}

func TestQuotas_Validate(t *testing.T) {
	tests := []struct {
		name    string
		q       Quotas
		wantErr bool
	}{
		{"increasing", Quotas{5, 10, 20}, false},
		{"equal tiers", Quotas{10, 10, 10}, false},
		{"zero guest", Quotas{0, 10, 20}, true},
		{"guest above user", Quotas{11, 10, 20}, true},
		{"user above admin", Quotas{5, 30, 20}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewLimiter_Validation(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())

	_, err := NewLimiter(nil, time.Minute, Quotas{1, 2, 3})
	assert.Error(t, err)

	_, err = NewLimiter(store, 0, Quotas{1, 2, 3})
	assert.Error(t, err)

	_, err = NewLimiter(store, time.Minute, Quotas{3, 2, 1})
	assert.Error(t, err)
}

func TestLimiter_TierOrdering(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	quotas := Quotas{Guest: 2, User: 4, Admin: 8}
	limiter, err := NewLimiter(NewMemoryStore(zap.NewNop()), time.Minute, quotas,
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	admitted := map[models.Role]int{}
	for _, role := range []models.Role{models.RoleGuest, models.RoleUser, models.RoleAdmin} {
		for i := 0; i < 20; i++ {
			res, err := limiter.Check(context.Background(), "subject:"+role.String(), role)
			require.NoError(t, err)
			if res.Allowed {
				admitted[role]++
			}
		}
	}

	assert.Equal(t, 2, admitted[models.RoleGuest])
	assert.Equal(t, 4, admitted[models.RoleUser])
	assert.Equal(t, 8, admitted[models.RoleAdmin])
	assert.LessOrEqual(t, admitted[models.RoleGuest], admitted[models.RoleUser])
	assert.LessOrEqual(t, admitted[models.RoleUser], admitted[models.RoleAdmin])
}

func TestLimiter_StoreError(t *testing.T) {
	store := new(MockStore)
	store.On("Allow", mock.Anything, "ip:1.2.3.4", 5, time.Minute, mock.Anything).
		Return(Result{}, errors.New("redis down"))

	limiter, err := NewLimiter(store, time.Minute, Quotas{5, 10, 20})
	require.NoError(t, err)

	res, err := limiter.Check(context.Background(), "ip:1.2.3.4", models.RoleGuest)
	assert.Error(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 5, res.Limit)
	store.AssertExpectations(t)
}
