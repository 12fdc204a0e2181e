package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/upb/acquisitions-api/auth"
	"github.com/upb/acquisitions-api/models"
	"github.com/upb/acquisitions-api/services"
	"github.com/upb/acquisitions-api/token"
	"go.uber.org/zap"
)

const testCookie = "session"

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

// statusFor is a reduced error mapping; handlers own the real one.
func statusFor(err error) int {
	switch services.GetErrorType(err) {
	case services.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorTypeForbidden, services.ErrorTypeBotDetected, services.ErrorTypeRequestBlocked:
		return http.StatusForbidden
	case services.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case services.ErrorTypeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeStatus(w http.ResponseWriter, _ *http.Request, err error) {
	w.WriteHeader(statusFor(err))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type fixture struct {
	clock   *testClock
	codec   *token.Codec
	carrier *auth.SessionCarrier
	gate    *Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	codec, err := token.NewCodec("middleware-secret", time.Hour, "acquisitions-api", token.WithClock(clock.Now))
	require.NoError(t, err)
	carrier := auth.NewSessionCarrier(testCookie, time.Hour, true)
	return &fixture{
		clock:   clock,
		codec:   codec,
		carrier: carrier,
		gate:    NewGate(carrier, codec, zap.NewNop()),
	}
}

func (f *fixture) user(role models.Role) *models.User {
	return &models.User{ID: uuid.New(), Name: "Test", Email: uuid.NewString() + "@example.com", Role: role}
}

// request builds a request carrying a session for user, or none when nil.
func (f *fixture) request(t *testing.T, method, target string, user *models.User) *http.Request {
	t.Helper()
	r := httptest.NewRequest(method, target, nil)
	if user != nil {
		signed, _, err := f.codec.Sign(user)
		require.NoError(t, err)
		r.AddCookie(&http.Cookie{Name: testCookie, Value: signed})
	}
	return r
}

// withURLParam attaches a chi route parameter the way the router would.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
