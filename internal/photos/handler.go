package photos

import (
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fiocam/panel/internal/shared"
	"github.com/fiocam/panel/internal/view"
)

// Handler serves the photo summary, galleries and exports. The same views
// are mounted under /fotos and /galeria so each keeps its own permission.
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

// exportWriteWindow bounds how long one ZIP download may keep writing.
const exportWriteWindow = 15 * time.Minute

// IsExportPath reports whether p is a ZIP export download. Those stream for
// longer than the usual request timeout.
func IsExportPath(p string) bool {
	ok, _ := path.Match("/fotos/*/zip", p)
	return ok
}

// MountRoutes registers photo routes.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, base := range []string{"/fotos", "/galeria"} {
		r.Get(base, h.summary(base))
		r.Get(base+"/{id}", h.gallery(base))
	}
	r.Get("/fotos/{id}/zip", h.export)
}

func (h *Handler) summary(base string) http.HandlerFunc {
	title := "Fotos"
	if base == "/galeria" {
		title = "Galería"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		search := r.URL.Query().Get("q")
		rows, err := h.service.Summaries(r.Context(), search)
		status := http.StatusOK
		errs := map[string]string{}
		if err != nil {
			h.logger.Error("photo summary", slog.Any("error", err))
			errs["general"] = shared.UserSafeMessage(err)
			status = http.StatusInternalServerError
		}
		h.render(w, r, "pages/fotos.html", title, map[string]any{
			"Base":      base,
			"Summaries": rows,
			"Search":    search,
			"Errors":    errs,
		}, status)
	}
}

func (h *Handler) gallery(base string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := h.service.Gallery(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			h.logger.Error("photo gallery", slog.Any("error", err))
			http.Error(w, "No se pudieron cargar las fotos", http.StatusInternalServerError)
			return
		}
		h.render(w, r, "pages/galeria.html", "Fotos de "+g.Obra.Nombre, map[string]any{
			"Base":      base,
			"Gallery":   g,
			"CanExport": base == "/fotos",
		}, http.StatusOK)
	}
}

// export streams the archive; failures after the first byte can only be logged.
func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	obra, err := h.service.Obra(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("photo export", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	name := obra.NumeroObra
	if name == "" {
		name = obra.ID
	}
	name = "fotos-" + strings.NewReplacer(" ", "_", "\"", "", "/", "_").Replace(name) + ".zip"
	if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(exportWriteWindow)); err != nil {
		h.logger.Debug("photo export write deadline", slog.Any("error", err))
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	n, err := h.service.Export(r.Context(), obra.ID, w)
	if err != nil {
		h.logger.Error("photo export", slog.String("obra_id", obra.ID), slog.Int("written", n), slog.Any("error", err))
		return
	}
	h.logger.Info("photo export", slog.String("obra_id", obra.ID), slog.Int("written", n))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}
