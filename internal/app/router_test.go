package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiocam/panel/internal/home"
	"github.com/fiocam/panel/internal/observability"
	"github.com/fiocam/panel/internal/photos"
	"github.com/fiocam/panel/internal/rbac"
	"github.com/fiocam/panel/internal/shared"
	"github.com/fiocam/panel/internal/view"
	"github.com/fiocam/panel/jobs"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	templates, err := view.NewEngine()
	require.NoError(t, err)

	cfg := &Config{AppEnv: "production", AppRequestTimeout: 5 * time.Second}
	csrf := shared.NewCSRFManager("csrfsecret")
	guard := rbac.NewGuard(rbac.DefaultTable(), rbac.PrefixMatch, "")
	logger := newLogger(cfg, &strings.Builder{})

	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: shared.NewSessionManager(client, "test_session", "secret", time.Hour, false),
		CSRFManager:    csrf,
		Gate:           rbac.Gate{Guard: guard, Nav: rbac.NewFilter(guard, rbac.DefaultNav()), Logger: logger},
		Metrics:        observability.NewMetrics(),
		HomeHandler:    home.NewHandler(logger, nil, templates, csrf, time.UTC, ""),
		JobHandler:     jobs.NewHandler(nil, logger),
	})
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(newTestRouter(t), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestJobsHealthMounted(t *testing.T) {
	rec := get(newTestRouter(t), "/healthz/jobs/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnonymousIsSentToLogin(t *testing.T) {
	router := newTestRouter(t)
	for _, path := range []string{"/home", rbac.DefaultDeniedPath} {
		rec := get(router, path)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)
	}
}

func TestRootRedirectsHome(t *testing.T) {
	rec := get(newTestRouter(t), "/")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))
}

func TestStaticAssetsAreCached(t *testing.T) {
	rec := get(newTestRouter(t), "/static/css/app.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
}

func TestMetricsRecordsRequests(t *testing.T) {
	router := newTestRouter(t)
	get(router, "/healthz")
	rec := get(router, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `panel_http_requests_total{code="200",route="/healthz"}`)
}

func TestUnsafeRequestWithoutTokenIsRejected(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/home", strings.NewReader("x=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-Proto", "https")
	newTestRouter(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequestTimeoutSkipsExportDownloads(t *testing.T) {
	var hasDeadline bool
	handler := requestTimeout(time.Second, photos.IsExportPath)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fotos/o-1", nil))
	assert.True(t, hasDeadline)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fotos/o-1/zip", nil))
	assert.False(t, hasDeadline)
}
