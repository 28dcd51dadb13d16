// Package home serves the landing page and the access denied page.
package home

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fiocam/panel/internal/rbac"
	"github.com/fiocam/panel/internal/shared"
	"github.com/fiocam/panel/internal/users"
	"github.com/fiocam/panel/internal/view"
)

// ProfileSource finds the signed-in user's profile.
type ProfileSource interface {
	Own(ctx context.Context, principalID string) (users.Profile, error)
}

// Handler serves /home and the denial page.
type Handler struct {
	logger     *slog.Logger
	profiles   ProfileSource
	templates  *view.Engine
	csrf       *shared.CSRFManager
	loc        *time.Location
	deniedPath string
	now        func() time.Time
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, profiles ProfileSource, templates *view.Engine, csrf *shared.CSRFManager, loc *time.Location, deniedPath string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	if deniedPath == "" {
		deniedPath = rbac.DefaultDeniedPath
	}
	return &Handler{logger: logger, profiles: profiles, templates: templates, csrf: csrf, loc: loc, deniedPath: deniedPath, now: time.Now}
}

// MountRoutes registers the landing and denial routes. Both sit behind the
// access gate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/home", h.home)
	r.Get(h.deniedPath, h.denied)
}

// Greeting picks the salutation for a local hour.
func Greeting(hour int) string {
	switch {
	case hour < 12:
		return "Buen día"
	case hour < 19:
		return "Buenas tardes"
	default:
		return "Buenas noches"
	}
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	sc, _ := rbac.AccessFromContext(r.Context())
	name := ""
	if h.profiles != nil && sc.PrincipalID != "" {
		p, err := h.profiles.Own(r.Context(), sc.PrincipalID)
		if err != nil {
			h.logger.Debug("home profile", slog.String("principal", sc.PrincipalID), slog.Any("error", err))
		} else {
			name = p.Nombre
		}
	}
	links := []shared.NavLink{}
	for _, link := range shared.NavFromContext(r.Context()) {
		if link.Path != "/home" {
			links = append(links, link)
		}
	}
	h.render(w, r, "pages/home.html", "Inicio", map[string]any{
		"Greeting": Greeting(h.now().In(h.loc).Hour()),
		"Name":     name,
		"Links":    links,
	}, http.StatusOK)
}

func (h *Handler) denied(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/denegado.html", "Acceso denegado", nil, http.StatusForbidden)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}
