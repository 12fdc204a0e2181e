package throttle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/acquisitions-api/models"
	"github.com/upb/acquisitions-api/services"
	"github.com/upb/acquisitions-api/services/detector"
	"github.com/upb/acquisitions-api/services/ratelimit"
	"go.uber.org/zap"
)

type stubDetector struct {
	sig detector.Signal
	err error
}

func (d stubDetector) Inspect(context.Context, *http.Request) (detector.Signal, error) {
	return d.sig, d.err
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (ratelimit.Result, error) {
	args := m.Called(ctx, key, limit, window, now)
	return args.Get(0).(ratelimit.Result), args.Error(1)
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newLimiter(t *testing.T, store ratelimit.Store, clock *testClock, quotas ratelimit.Quotas) *ratelimit.Limiter {
	t.Helper()
	l, err := ratelimit.NewLimiter(store, time.Minute, quotas, ratelimit.WithClock(clock.Now))
	require.NoError(t, err)
	return l
}

func guest(key string) Subject {
	return Subject{Key: key, Role: models.RoleGuest}
}

func TestVerdict(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "deny_shield", DenyShield.String())
	assert.Equal(t, "unknown", Verdict(42).String())

	assert.Nil(t, Allow.Err())
	assert.ErrorIs(t, DenyBot.Err(), services.ErrBotDetected)
	assert.ErrorIs(t, DenyRate.Err(), services.ErrRateLimited)
	assert.ErrorIs(t, DenyShield.Err(), services.ErrRequestBlocked)
	assert.False(t, Allow.Denied())
	assert.True(t, DenyRate.Denied())
}

func TestThrottle_RateWindow(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	limiter := newLimiter(t, ratelimit.NewMemoryStore(zap.NewNop()), clock, ratelimit.Quotas{Guest: 3, User: 5, Admin: 10})
	th := New(nil, limiter, NewMemoryStats(), Options{}, zap.NewNop())
	r := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := th.Evaluate(ctx, r, guest("ip:192.0.2.1"))
		require.NoError(t, err)
		assert.Equal(t, Allow, d.Verdict, "request %d", i+1)
		require.NotNil(t, d.Rate)
	}

	d, err := th.Evaluate(ctx, r, guest("ip:192.0.2.1"))
	require.NoError(t, err)
	assert.Equal(t, DenyRate, d.Verdict)
	assert.Greater(t, d.Rate.RetryAfter, time.Duration(0))

	d, err = th.Evaluate(ctx, r, guest("ip:192.0.2.2"))
	require.NoError(t, err)
	assert.Equal(t, Allow, d.Verdict, "subjects are independent")

	clock.now = clock.now.Add(time.Minute)
	d, err = th.Evaluate(ctx, r, guest("ip:192.0.2.1"))
	require.NoError(t, err)
	assert.Equal(t, Allow, d.Verdict, "admitted again once the window rolls")
}

func TestThrottle_DetectorPrecedence(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	tests := []struct {
		name string
		sig  detector.Signal
		want Verdict
	}{
		{"shield beats bot", detector.Signal{Bot: true, Shielded: true}, DenyShield},
		{"bot", detector.Signal{Bot: true}, DenyBot},
		{"shield", detector.Signal{Shielded: true}, DenyShield},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := ratelimit.NewMemoryStore(zap.NewNop())
			limiter := newLimiter(t, store, clock, ratelimit.Quotas{Guest: 1, User: 1, Admin: 1})

			// exhaust the quota so a rate denial would also apply
			_, err := limiter.Check(context.Background(), "ip:x", models.RoleGuest)
			require.NoError(t, err)

			th := New(stubDetector{sig: tt.sig}, limiter, nil, Options{}, zap.NewNop())
			d, err := th.Evaluate(context.Background(), r, guest("ip:x"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Verdict)
			assert.Nil(t, d.Rate)
		})
	}
}

func TestThrottle_BotDenialDoesNotConsumeQuota(t *testing.T) {
	store := new(MockStore)
	clock := &testClock{now: time.Now()}
	limiter := newLimiter(t, store, clock, ratelimit.Quotas{Guest: 1, User: 2, Admin: 3})
	th := New(stubDetector{sig: detector.Signal{Bot: true}}, limiter, nil, Options{}, zap.NewNop())

	d, err := th.Evaluate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil), guest("ip:x"))
	require.NoError(t, err)
	assert.Equal(t, DenyBot, d.Verdict)
	store.AssertNotCalled(t, "Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestThrottle_DetectorFailure(t *testing.T) {
	clock := &testClock{now: time.Now()}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	failure := errors.New("dial tcp: connection refused")

	t.Run("fails open by default", func(t *testing.T) {
		limiter := newLimiter(t, ratelimit.NewMemoryStore(zap.NewNop()), clock, ratelimit.Quotas{Guest: 1, User: 1, Admin: 1})
		th := New(stubDetector{err: failure}, limiter, nil, Options{}, zap.NewNop())

		d, err := th.Evaluate(context.Background(), r, guest("ip:x"))
		require.NoError(t, err)
		assert.Equal(t, Allow, d.Verdict)

		d, err = th.Evaluate(context.Background(), r, guest("ip:x"))
		require.NoError(t, err)
		assert.Equal(t, DenyRate, d.Verdict, "rate limiting still applies")
	})

	t.Run("saturation is no verdict", func(t *testing.T) {
		limiter := newLimiter(t, ratelimit.NewMemoryStore(zap.NewNop()), clock, ratelimit.Quotas{Guest: 1, User: 1, Admin: 1})
		th := New(stubDetector{err: detector.ErrSaturated}, limiter, nil, Options{}, zap.NewNop())

		d, err := th.Evaluate(context.Background(), r, guest("ip:y"))
		require.NoError(t, err)
		assert.Equal(t, Allow, d.Verdict)
	})

	t.Run("fails closed when configured", func(t *testing.T) {
		limiter := newLimiter(t, ratelimit.NewMemoryStore(zap.NewNop()), clock, ratelimit.Quotas{Guest: 1, User: 1, Admin: 1})
		th := New(stubDetector{err: failure}, limiter, nil, Options{DetectorFailClosed: true}, zap.NewNop())

		_, err := th.Evaluate(context.Background(), r, guest("ip:z"))
		assert.True(t, services.IsUpstreamUnavailableError(err))
	})

	t.Run("partial failure with a flag still denies", func(t *testing.T) {
		limiter := newLimiter(t, ratelimit.NewMemoryStore(zap.NewNop()), clock, ratelimit.Quotas{Guest: 1, User: 1, Admin: 1})
		th := New(stubDetector{sig: detector.Signal{Bot: true}, err: failure}, limiter, nil, Options{DetectorFailClosed: true}, zap.NewNop())

		d, err := th.Evaluate(context.Background(), r, guest("ip:w"))
		require.NoError(t, err)
		assert.Equal(t, DenyBot, d.Verdict)
	})
}

func TestThrottle_StoreFailure(t *testing.T) {
	clock := &testClock{now: time.Now()}
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	newBroken := func() *ratelimit.Limiter {
		store := new(MockStore)
		store.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(ratelimit.Result{}, errors.New("redis: connection pool timeout"))
		return newLimiter(t, store, clock, ratelimit.Quotas{Guest: 1, User: 1, Admin: 1})
	}

	d, err := New(nil, newBroken(), nil, Options{}, zap.NewNop()).Evaluate(context.Background(), r, guest("k"))
	require.NoError(t, err)
	assert.Equal(t, Allow, d.Verdict)

	_, err = New(nil, newBroken(), nil, Options{LimiterFailClosed: true}, zap.NewNop()).Evaluate(context.Background(), r, guest("k"))
	assert.True(t, services.IsUpstreamUnavailableError(err))
}

func TestThrottle_RecordsStats(t *testing.T) {
	clock := &testClock{now: time.Now()}
	stats := NewMemoryStats()
	limiter := newLimiter(t, ratelimit.NewMemoryStore(zap.NewNop()), clock, ratelimit.Quotas{Guest: 1, User: 1, Admin: 1})
	th := New(nil, limiter, stats, Options{}, zap.NewNop())
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	for i := 0; i < 3; i++ {
		_, err := th.Evaluate(context.Background(), r, guest("k"))
		require.NoError(t, err)
	}

	snap, err := stats.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Counts["allow"])
	assert.Equal(t, int64(2), snap.Counts["deny_rate"])
	assert.Equal(t, int64(0), snap.Counts["deny_bot"])
}
