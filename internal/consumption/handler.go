package consumption

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fiocam/panel/internal/rbac"
	"github.com/fiocam/panel/internal/shared"
	"github.com/fiocam/panel/internal/view"
)

// Handler serves the consumption pages.
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

// MountRoutes registers consumption routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/consumo", h.list)
	r.Get("/consumo/{id}", h.sheet)
	r.Post("/consumo/{id}", h.register)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("q")
	obras, err := h.service.Obras(r.Context(), search)
	status := http.StatusOK
	errs := map[string]string{}
	if err != nil {
		h.logger.Error("list consumo obras", slog.Any("error", err))
		errs["general"] = shared.UserSafeMessage(err)
		status = http.StatusInternalServerError
	}
	h.render(w, r, "pages/consumo.html", "Consumo", map[string]any{
		"Obras":  obras,
		"Search": search,
		"Errors": errs,
	}, status)
}

func (h *Handler) sheet(w http.ResponseWriter, r *http.Request) {
	sheet, err := h.service.Sheet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load consumo sheet", slog.Any("error", err))
		http.Error(w, "No se pudo cargar la obra", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/consumo_obra.html", "Registrar consumo", map[string]any{"Sheet": sheet}, http.StatusOK)
}

// register reads the technician and fields named cantidad_<materialID>.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	back := "/consumo/" + id
	reg := Registration{ObraID: id, TecnicoID: r.PostFormValue("tecnico_id"), Cantidades: map[string]float64{}}
	for key, values := range r.PostForm {
		materialID, ok := strings.CutPrefix(key, "cantidad_")
		if !ok || len(values) == 0 || strings.TrimSpace(values[0]) == "" {
			continue
		}
		qty, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(values[0]), ",", "."), 64)
		if err != nil {
			h.redirectWithFlash(w, r, back, "error", "Cantidad inválida")
			return
		}
		reg.Cantidades[materialID] = qty
	}
	n, err := h.service.Register(r.Context(), actor(r), reg)
	if err != nil {
		h.redirectWithFlash(w, r, back, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/consumo", "success", strconv.Itoa(n)+" consumos registrados correctamente")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func actor(r *http.Request) string {
	sc, _ := rbac.AccessFromContext(r.Context())
	return sc.PrincipalID
}
