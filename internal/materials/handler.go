package materials

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

// Handler serves the catalog and the per-site plan pages.
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

// MountRoutes registers material routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/materiales", h.list)
	r.Post("/materiales", h.upsert)
	r.Post("/materiales/{id}", h.update)
	r.Post("/materiales/{id}/delete", h.delete)

	r.Get("/obras/{id}/materiales", h.showPlan)
	r.Post("/obras/{id}/materiales", h.savePlan)
}

type formErrors map[string]string

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r, MaterialInput{Activo: true}, formErrors{}, http.StatusOK)
}

func (h *Handler) renderList(w http.ResponseWriter, r *http.Request, form MaterialInput, errs formErrors, status int) {
	search := r.URL.Query().Get("q")
	items, err := h.service.List(r.Context(), search)
	if err != nil {
		h.logger.Error("list materiales", slog.Any("error", err))
		errs["general"] = shared.UserSafeMessage(err)
		status = http.StatusInternalServerError
	}
	h.render(w, r, "pages/materiales.html", "Materiales", map[string]any{
		"Materiales": items,
		"Search":     search,
		"Form":       form,
		"Errors":     errs,
	}, status)
}

func formInput(r *http.Request) MaterialInput {
	activo := r.PostFormValue("activo")
	return MaterialInput{
		Codigo:      r.PostFormValue("codigo"),
		Descripcion: r.PostFormValue("descripcion"),
		Unidad:      r.PostFormValue("unidad"),
		Abreviacion: r.PostFormValue("abreviacion"),
		Activo:      activo == "on" || activo == "true" || activo == "1",
	}
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := formInput(r)
	if _, err := h.service.Upsert(r.Context(), actor(r), in); err != nil {
		h.renderList(w, r, in, formErrors{"general": shared.UserSafeMessage(err)}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/materiales", "success", "Material creado o actualizado correctamente")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.service.Update(r.Context(), actor(r), chi.URLParam(r, "id"), formInput(r)); err != nil {
		h.redirectWithFlash(w, r, "/materiales", "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/materiales", "success", "Material actualizado")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		h.redirectWithFlash(w, r, "/materiales", "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/materiales", "success", "Material eliminado")
}

func (h *Handler) showPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.service.Plan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load plan", slog.Any("error", err))
		http.Error(w, "No se pudo cargar el plan", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/obra_materiales.html", "Materiales de "+plan.ObraNombre, map[string]any{"Plan": plan}, http.StatusOK)
}

// savePlan reads fields named cantidad_<materialID>.
func (h *Handler) savePlan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	back := "/obras/" + id + "/materiales"
	quantities := map[string]float64{}
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
		quantities[materialID] = qty
	}
	if err := h.service.SavePlan(r.Context(), actor(r), id, quantities); err != nil {
		h.redirectWithFlash(w, r, back, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, back, "success", "Materiales asignados correctamente")
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
