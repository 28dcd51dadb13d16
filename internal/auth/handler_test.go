package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/fiocam/panel/internal/auth"
	"github.com/fiocam/panel/internal/shared"
	"github.com/fiocam/panel/internal/view"
	_ "github.com/fiocam/panel/testing"
)

type stubRepo struct {
	ident *auth.Identity
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	if s.ident == nil || !strings.EqualFold(email, s.ident.Email) {
		return nil, shared.ErrNotFound
	}
	return s.ident, nil
}

func (s *stubRepo) Create(ctx context.Context, id, email, hash string) error { return nil }
func (s *stubRepo) Delete(ctx context.Context, id string) error             { return nil }
func (s *stubRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	return nil
}
func (s *stubRepo) UpdateEmail(ctx context.Context, id, email string) error { return nil }
func (s *stubRepo) Emails(ctx context.Context, ids []string) (map[string]string, error) {
	return map[string]string{}, nil
}

type forgetRecorder struct {
	forgotten []string
}

func (f *forgetRecorder) Forget(ctx context.Context, principalID string) {
	f.forgotten = append(f.forgotten, principalID)
}

type fixture struct {
	router   http.Handler
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
	roles    *forgetRecorder
}

func newFixture(t *testing.T, repo auth.Repository) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	roles := &forgetRecorder{}
	handler := auth.NewHandler(nil, auth.NewService(repo), templates, sessions, csrf, roles)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return fixture{router: r, sessions: sessions, csrf: csrf, roles: roles}
}

// serve runs one request with a session loaded and committed around it.
func (f fixture) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := f.sessions.Load(req.Context(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	if err := f.sessions.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res, sess
}

func postLogin(email, password string, sessionID string, cookieName string) *http.Request {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: sessionID})
	}
	return req
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(h)
}

func TestLoginPage(t *testing.T) {
	f := newFixture(t, &stubRepo{})
	res, sess := f.serve(t, httptest.NewRequest(http.MethodGet, "/login", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "<form") {
		t.Fatalf("expected login form in body")
	}
	if sess.Get(shared.CSRFSessionKey) == "" {
		t.Fatalf("csrf token not set")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t, &stubRepo{ident: &auth.Identity{ID: "5b1c", Email: "ana@fiocam.test", PasswordHash: hashed(t, "correcta")}})

	res, sess := f.serve(t, postLogin("ana@fiocam.test", "incorrecta", "", ""))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Email o contraseña incorrectos") {
		t.Fatalf("expected error message in response")
	}
	if sess.Principal() != "" {
		t.Fatalf("principal must stay empty, got %q", sess.Principal())
	}
}

func TestLoginValidationErrors(t *testing.T) {
	f := newFixture(t, &stubRepo{})
	res, _ := f.serve(t, postLogin("not-an-email", "123", "", ""))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, "Email inválido") {
		t.Fatalf("expected email validation message, got %s", body)
	}
}

func TestLoginSuccessAndLogout(t *testing.T) {
	f := newFixture(t, &stubRepo{ident: &auth.Identity{ID: "0f7e9f5a-1c2b-4d3e-9a8b-7c6d5e4f3a2b", Email: "ana@fiocam.test", PasswordHash: hashed(t, "correcta")}})

	res, sess := f.serve(t, postLogin("ANA@fiocam.test", "correcta", "", ""))
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/home" {
		t.Fatalf("expected redirect to /home, got %q", loc)
	}
	if sess.Principal() != "0f7e9f5a-1c2b-4d3e-9a8b-7c6d5e4f3a2b" {
		t.Fatalf("principal not stored, got %q", sess.Principal())
	}

	logout := httptest.NewRequest(http.MethodPost, "/logout", nil)
	logout.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: sess.ID})
	res, _ = f.serve(t, logout)
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", res.Code, res.Header().Get("Location"))
	}
	if len(f.roles.forgotten) != 1 || f.roles.forgotten[0] != sess.Principal() {
		t.Fatalf("expected cached role to be forgotten, got %v", f.roles.forgotten)
	}
}

func TestLoginIsThrottledPerAddress(t *testing.T) {
	f := newFixture(t, &stubRepo{})
	var last int
	for i := 0; i < 11; i++ {
		res, _ := f.serve(t, postLogin("ana@fiocam.test", "incorrecta", "", ""))
		last = res.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated attempts, got %d", last)
	}
}
