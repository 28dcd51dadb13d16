package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fiocam/panel/internal/auth"
	"github.com/fiocam/panel/internal/consumption"
	"github.com/fiocam/panel/internal/home"
	"github.com/fiocam/panel/internal/locations"
	"github.com/fiocam/panel/internal/materials"
	"github.com/fiocam/panel/internal/observability"
	"github.com/fiocam/panel/internal/photos"
	"github.com/fiocam/panel/internal/plans"
	"github.com/fiocam/panel/internal/rbac"
	"github.com/fiocam/panel/internal/shared"
	"github.com/fiocam/panel/internal/sites"
	"github.com/fiocam/panel/internal/users"
	"github.com/fiocam/panel/jobs"
	"github.com/fiocam/panel/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Gate           rbac.Gate
	Metrics        *observability.Metrics

	AuthHandler        *auth.Handler
	HomeHandler        *home.Handler
	UsersHandler       *users.Handler
	SitesHandler       *sites.Handler
	MaterialsHandler   *materials.Handler
	ConsumptionHandler *consumption.Handler
	PhotosHandler      *photos.Handler
	PlansHandler       *plans.Handler
	LocationsHandler   *locations.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with panel defaults. Everything except
// health, metrics, static assets and the login flow passes the access gate.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	if !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.JobHandler != nil {
		r.Route("/healthz/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
	})

	r.Group(func(r chi.Router) {
		r.Use(params.Gate.Middleware)
		if params.HomeHandler != nil {
			params.HomeHandler.MountRoutes(r)
		}
		if params.UsersHandler != nil {
			params.UsersHandler.MountRoutes(r)
		}
		if params.SitesHandler != nil {
			params.SitesHandler.MountRoutes(r)
		}
		if params.MaterialsHandler != nil {
			params.MaterialsHandler.MountRoutes(r)
		}
		if params.ConsumptionHandler != nil {
			params.ConsumptionHandler.MountRoutes(r)
		}
		if params.PhotosHandler != nil {
			params.PhotosHandler.MountRoutes(r)
		}
		if params.PlansHandler != nil {
			params.PlansHandler.MountRoutes(r)
		}
		if params.LocationsHandler != nil {
			params.LocationsHandler.MountRoutes(r)
		}
	})

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for 1 hour in browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
