package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/acquisitions-api/models"
	"github.com/upb/acquisitions-api/services"
	"github.com/upb/acquisitions-api/token"
	"go.uber.org/zap"
)

func TestGate_Authenticate(t *testing.T) {
	f := newFixture(t)
	user := f.user(models.RoleUser)

	t.Run("valid session attaches identity", func(t *testing.T) {
		var got *models.User
		h := NewPipeline(writeStatus, zap.NewNop(), f.gate.Authenticate()).ThenFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = IdentityFromContext(r.Context())
		})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, f.request(t, http.MethodGet, "/", user))

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, got)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, models.RoleUser, got.Role)
	})

	other, err := token.NewCodec("other-secret", time.Hour, "acquisitions-api", token.WithClock(f.clock.Now))
	require.NoError(t, err)
	forged, _, err := other.Sign(f.user(models.RoleAdmin))
	require.NoError(t, err)

	tests := []struct {
		name   string
		cookie string
	}{
		{"no cookie", ""},
		{"garbage", "not-a-token"},
		{"wrong signature", forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := NewPipeline(writeStatus, zap.NewNop(), f.gate.Authenticate()).ThenFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: testCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called)
		})
	}

	t.Run("expired session", func(t *testing.T) {
		r := f.request(t, http.MethodGet, "/", user)
		saved := f.clock.now
		f.clock.now = saved.Add(time.Hour)
		defer func() { f.clock.now = saved }()

		rec := httptest.NewRecorder()
		NewPipeline(writeStatus, zap.NewNop(), f.gate.Authenticate()).Then(okHandler()).ServeHTTP(rec, r)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGate_OptionalAuthenticate(t *testing.T) {
	f := newFixture(t)

	run := func(r *http.Request) (*models.User, int) {
		var got *models.User
		h := NewPipeline(writeStatus, zap.NewNop(), f.gate.OptionalAuthenticate()).ThenFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = IdentityFromContext(r.Context())
		})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return got, rec.Code
	}

	admin := f.user(models.RoleAdmin)
	got, code := run(f.request(t, http.MethodPost, "/", admin))
	assert.Equal(t, http.StatusOK, code)
	require.NotNil(t, got)
	assert.Equal(t, admin.ID, got.ID)

	got, code = run(f.request(t, http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, got)

	bad := httptest.NewRequest(http.MethodPost, "/", nil)
	bad.AddCookie(&http.Cookie{Name: testCookie, Value: "junk"})
	got, code = run(bad)
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, got)
}

func TestRequireRole(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		role models.Role
		want int
	}{
		{"admin allowed", models.RoleAdmin, http.StatusOK},
		{"user forbidden", models.RoleUser, http.StatusForbidden},
		{"guest forbidden", models.RoleGuest, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPipeline(writeStatus, zap.NewNop(), f.gate.Authenticate(), RequireRole(models.RoleAdmin)).Then(okHandler())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, f.request(t, http.MethodGet, "/", f.user(tt.role)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("no identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewPipeline(writeStatus, zap.NewNop(), RequireRole(models.RoleAdmin)).Then(okHandler()).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireSelfOrRole(t *testing.T) {
	f := newFixture(t)
	owner := f.user(models.RoleUser)
	stranger := f.user(models.RoleUser)
	admin := f.user(models.RoleAdmin)

	tests := []struct {
		name   string
		caller *models.User
		param  string
		want   int
	}{
		{"self", owner, owner.ID.String(), http.StatusOK},
		{"self upper-case id", owner, strings.ToUpper(owner.ID.String()), http.StatusOK},
		{"other user", stranger, owner.ID.String(), http.StatusForbidden},
		{"admin", admin, owner.ID.String(), http.StatusOK},
		{"malformed id", stranger, "not-a-uuid", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPipeline(writeStatus, zap.NewNop(),
				f.gate.Authenticate(), RequireSelfOrRole("id", models.RoleAdmin)).Then(okHandler())
			r := withURLParam(f.request(t, http.MethodGet, "/api/users/"+tt.param, tt.caller), "id", tt.param)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestDenySelf(t *testing.T) {
	f := newFixture(t)
	admin := f.user(models.RoleAdmin)
	target := f.user(models.RoleUser)

	var reported error
	onError := func(w http.ResponseWriter, r *http.Request, err error) {
		reported = err
		writeStatus(w, r, err)
	}
	h := NewPipeline(onError, zap.NewNop(),
		f.gate.Authenticate(), RequireRole(models.RoleAdmin), DenySelf("id")).Then(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withURLParam(f.request(t, http.MethodDelete, "/", admin), "id", admin.ID.String()))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.ErrorIs(t, reported, services.ErrCannotDeleteSelf)
	assert.Equal(t, "you cannot delete your own account", services.PublicMessage(reported, ""))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withURLParam(f.request(t, http.MethodDelete, "/", admin), "id", target.ID.String()))
	assert.Equal(t, http.StatusOK, rec.Code)
}
