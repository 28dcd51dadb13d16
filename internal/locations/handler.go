package locations

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fiocam/panel/internal/platform/httpx"
	"github.com/fiocam/panel/internal/shared"
	"github.com/fiocam/panel/internal/view"
)

// Enqueuer schedules a tracking simulation in the background.
type Enqueuer interface {
	EnqueueTrackingSimulation(ctx context.Context) (string, error)
}

// Handler serves the map page and its JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	enqueuer  Enqueuer
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds Handler instance. enqueuer may be nil when no worker
// queue is configured.
func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, enqueuer: enqueuer, templates: templates, csrf: csrf}
}

// MountRoutes registers location routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ubicaciones", h.page)
	r.Get("/ubicaciones/api", h.latest)
	r.Get("/ubicaciones/api/trails", h.snapshot)
	r.Post("/ubicaciones/api/simulate", h.simulate)
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context())
	status := http.StatusOK
	errs := map[string]string{}
	if err != nil {
		h.logger.Error("load locations", slog.Any("error", err))
		errs["general"] = shared.UserSafeMessage(err)
		status = http.StatusInternalServerError
	}
	viewData := view.NewTemplateData(r, h.csrf, "Ubicaciones", map[string]any{
		"Snapshot":    snap,
		"CanSimulate": h.enqueuer != nil,
		"Errors":      errs,
	})
	if err := h.templates.RenderStatus(w, status, "pages/ubicaciones.html", viewData); err != nil {
		h.logger.Error("render template", slog.String("template", "pages/ubicaciones.html"), slog.Any("error", err))
	}
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	points, err := h.service.Latest(r.Context())
	if err != nil {
		h.logger.Error("latest locations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, points)
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("location trails", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "La cola de trabajos no está configurada")
		return
	}
	id, err := h.enqueuer.EnqueueTrackingSimulation(r.Context())
	if err != nil {
		h.logger.Error("enqueue tracking simulation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("tracking simulation enqueued", slog.String("task_id", id))
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}
