package home

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiocam/panel/internal/rbac"
	"github.com/fiocam/panel/internal/shared"
	"github.com/fiocam/panel/internal/users"
	"github.com/fiocam/panel/internal/view"
)

// ============================================================================
// STUBS
// ============================================================================

type stubProfiles struct {
	profile users.Profile
	err     error
}

func (s stubProfiles) Own(ctx context.Context, principalID string) (users.Profile, error) {
	return s.profile, s.err
}

type stubResolver map[string]rbac.Role

func (s stubResolver) Resolve(ctx context.Context, principalID string) rbac.Role {
	if role, ok := s[principalID]; ok {
		return role
	}
	return rbac.NoRole
}

// ============================================================================
// HELPERS
// ============================================================================

func newRouter(t *testing.T, profiles ProfileSource) http.Handler {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)

	h := NewHandler(nil, profiles, templates, nil, time.UTC, "")
	h.now = func() time.Time { return time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC) }

	guard := rbac.NewGuard(rbac.DefaultTable(), rbac.PrefixMatch, "")
	gate := rbac.Gate{
		Resolver: stubResolver{"dep-1": rbac.RoleDeposito, "cum-1": rbac.RoleCumplimiento},
		Guard:    guard,
		Nav:      rbac.NewFilter(guard, rbac.DefaultNav()),
	}
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(gate.Middleware)
		h.MountRoutes(r)
	})
	return r
}

func serveAs(t *testing.T, router http.Handler, principal, path string) *httptest.ResponseRecorder {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test_session", "secret", time.Hour, false)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	sess, err := sessions.Load(req.Context(), req)
	require.NoError(t, err)
	sess.SetPrincipal(principal)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// ============================================================================
// TESTS
// ============================================================================

func TestGreeting(t *testing.T) {
	assert.Equal(t, "Buen día", Greeting(0))
	assert.Equal(t, "Buen día", Greeting(11))
	assert.Equal(t, "Buenas tardes", Greeting(12))
	assert.Equal(t, "Buenas tardes", Greeting(18))
	assert.Equal(t, "Buenas noches", Greeting(19))
	assert.Equal(t, "Buenas noches", Greeting(23))
}

func TestHomeShowsOnlyPermittedTiles(t *testing.T) {
	router := newRouter(t, stubProfiles{profile: users.Profile{Nombre: "Martín"}})
	rec := serveAs(t, router, "dep-1", "/home")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Buen día, Martín")
	assert.Contains(t, body, `href="/materiales"`)
	assert.Contains(t, body, `href="/consumo"`)
	assert.NotContains(t, body, `href="/fotos"`)
	assert.NotContains(t, body, `href="/admins"`)
}

func TestHomeWithoutProfileStillRenders(t *testing.T) {
	router := newRouter(t, stubProfiles{err: errors.New("boom")})
	rec := serveAs(t, router, "cum-1", "/home")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Buen día</h1>")
	assert.Contains(t, rec.Body.String(), `href="/planos"`)
}

func TestDeniedPageIsForbiddenAndShowsRole(t *testing.T) {
	router := newRouter(t, nil)
	rec := serveAs(t, router, "dep-1", rbac.DefaultDeniedPath)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acceso denegado")
	assert.Contains(t, rec.Body.String(), "deposito")
}

func TestUnknownPrincipalOnlyReachesDeniedPage(t *testing.T) {
	router := newRouter(t, nil)

	rec := serveAs(t, router, "ghost", "/home")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, rbac.DefaultDeniedPath, rec.Header().Get("Location"))

	rec = serveAs(t, router, "ghost", rbac.DefaultDeniedPath)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
