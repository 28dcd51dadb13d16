package plans

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fiocam/panel/internal/shared"
	"github.com/fiocam/panel/internal/view"
)

// Handler serves /planos.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// MountRoutes registers plan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/planos", h.list)
	r.Get("/planos/{id}", h.show)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("q")
	obras, err := h.service.Obras(r.Context(), search)
	status := http.StatusOK
	errs := map[string]string{}
	if err != nil {
		h.logger.Error("list planos obras", slog.Any("error", err))
		errs["general"] = shared.UserSafeMessage(err)
		status = http.StatusInternalServerError
	}
	h.render(w, r, "pages/planos.html", "Planos", map[string]any{
		"Obras":  obras,
		"Search": search,
		"Errors": errs,
	}, status)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	obra, planos, err := h.service.Planos(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load planos", slog.Any("error", err))
		http.Error(w, "No se pudieron cargar los planos", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/planos_obra.html", "Planos de "+obra.Nombre, map[string]any{
		"Obra":   obra,
		"Planos": planos,
	}, http.StatusOK)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}
