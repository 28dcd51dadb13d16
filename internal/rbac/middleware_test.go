package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiocam/panel/internal/shared"
)

type staticResolver map[string]Role

func (s staticResolver) Resolve(ctx context.Context, principalID string) Role {
	return s[principalID]
}

type decisionLog struct {
	entries []string
}

func (d *decisionLog) ObserveAccess(role, decision string) {
	d.entries = append(d.entries, role+":"+decision)
}

func newGate(rec DecisionRecorder) Gate {
	guard := NewGuard(DefaultTable(), PrefixMatch, "")
	return Gate{
		Resolver: staticResolver{"dep": RoleDeposito, "root": RoleSuperAdmin},
		Guard:    guard,
		Nav:      NewFilter(guard, DefaultNav()),
		Recorder: rec,
	}
}

func requestAs(t *testing.T, principal, path string) *http.Request {
	t.Helper()
	sm := shared.NewSessionManager(nil, "sid", "secret", 0, false)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	sess, err := sm.Load(req.Context(), req)
	require.NoError(t, err)
	if principal != "" {
		sess.SetPrincipal(principal)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestGateRedirectsAnonymousToLogin(t *testing.T) {
	called := false
	h := newGate(nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	res := httptest.NewRecorder()
	h.ServeHTTP(res, requestAs(t, "", "/home"))

	assert.False(t, called)
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/login", res.Header().Get("Location"))
}

func TestGateDeniesOutsideAllowList(t *testing.T) {
	rec := &decisionLog{}
	h := newGate(rec).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	res := httptest.NewRecorder()
	h.ServeHTTP(res, requestAs(t, "dep", "/admins"))

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/denegado", res.Header().Get("Location"))
	assert.Equal(t, []string{"deposito:redirect"}, rec.entries)
}

func TestGateUnknownProfileOnlyReachesDenialPage(t *testing.T) {
	rec := &decisionLog{}
	var seen SessionContext
	h := newGate(rec).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = AccessFromContext(r.Context())
		assert.Empty(t, shared.NavFromContext(r.Context()))
	}))

	res := httptest.NewRecorder()
	h.ServeHTTP(res, requestAs(t, "ghost", "/home"))
	assert.Equal(t, "/denegado", res.Header().Get("Location"))

	res = httptest.NewRecorder()
	h.ServeHTTP(res, requestAs(t, "ghost", "/denegado"))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.True(t, seen.Resolved)
	assert.Equal(t, NoRole, seen.Role)
	assert.Equal(t, []string{"none:redirect", "none:allow"}, rec.entries)
}

func TestGateAllowsAndPublishesNav(t *testing.T) {
	var links []shared.NavLink
	var sc SessionContext
	h := newGate(nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		links = shared.NavFromContext(r.Context())
		sc, _ = AccessFromContext(r.Context())
	}))

	res := httptest.NewRecorder()
	h.ServeHTTP(res, requestAs(t, "dep", "/materiales/123"))

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, RoleDeposito, sc.Role)
	assert.Equal(t, "dep", sc.PrincipalID)
	require.Len(t, links, 5)
	assert.Equal(t, shared.NavLink{Path: "/home", Label: "Inicio"}, links[0])
}
