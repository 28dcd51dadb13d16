package sites

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fiocam/panel/internal/platform/httpx"
	"github.com/fiocam/panel/internal/rbac"
	"github.com/fiocam/panel/internal/shared"
	"github.com/fiocam/panel/internal/view"
)

// Handler serves the /obras pages.
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

// MountRoutes registers site routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/obras", h.list)
	r.Post("/obras", h.create)
	r.Get("/obras/tecnicos", h.searchTecnicos)
	r.Get("/obras/{id}", h.show)
	r.Post("/obras/{id}", h.update)
	r.Post("/obras/{id}/tecnicos", h.replaceTecnicos)
	r.Post("/obras/{id}/tecnicos/asignar", h.assignTecnico)
	r.Post("/obras/{id}/tecnicos/{tecnicoID}/quitar", h.unassignTecnico)
}

type formErrors map[string]string

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r, ObraInput{}, formErrors{}, http.StatusOK)
}

func (h *Handler) renderList(w http.ResponseWriter, r *http.Request, form ObraInput, errs formErrors, status int) {
	search := r.URL.Query().Get("q")
	obras, err := h.service.List(r.Context(), search)
	if err != nil {
		h.logger.Error("list obras", slog.Any("error", err))
		errs["general"] = shared.UserSafeMessage(err)
		status = http.StatusInternalServerError
	}
	h.render(w, r, "pages/obras.html", "Obras", map[string]any{
		"Obras":   obras,
		"Search":  search,
		"Form":    form,
		"Estados": Estados,
		"Errors":  errs,
	}, status)
}

func formInput(r *http.Request) ObraInput {
	return ObraInput{
		NumeroObra: r.PostFormValue("numero_obra"),
		Nombre:     r.PostFormValue("nombre"),
		Cliente:    r.PostFormValue("cliente"),
		Direccion:  r.PostFormValue("direccion"),
		Estado:     r.PostFormValue("estado"),
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := formInput(r)
	o, err := h.service.Create(r.Context(), actor(r), in)
	if err != nil {
		h.renderList(w, r, in, formErrors{"general": shared.UserSafeMessage(err)}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/obras/"+o.ID, "success", "Obra creada")
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	h.renderDetail(w, r, formErrors{}, http.StatusOK)
}

func (h *Handler) renderDetail(w http.ResponseWriter, r *http.Request, errs formErrors, status int) {
	detail, err := h.service.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("obra detail", slog.Any("error", err))
		http.Error(w, "No se pudo cargar la obra", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/obra_detail.html", detail.Obra.Nombre, map[string]any{
		"Detail":  detail,
		"Estados": Estados,
		"Errors":  errs,
	}, status)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.Update(r.Context(), actor(r), id, formInput(r)); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.renderDetail(w, r, formErrors{"general": shared.UserSafeMessage(err)}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/obras/"+id, "success", "Obra actualizada")
}

func (h *Handler) searchTecnicos(w http.ResponseWriter, r *http.Request) {
	tecnicos, err := h.service.SearchTecnicos(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if tecnicos == nil {
		tecnicos = []Tecnico{}
	}
	httpx.JSON(w, http.StatusOK, tecnicos)
}

func (h *Handler) replaceTecnicos(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.ReplaceTecnicos(r.Context(), actor(r), id, r.PostForm["tecnico_id"]); err != nil {
		h.redirectWithFlash(w, r, "/obras/"+id, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/obras/"+id, "success", "Técnicos actualizados")
}

func (h *Handler) assignTecnico(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.AssignTecnico(r.Context(), actor(r), id, r.PostFormValue("tecnico_id")); err != nil {
		h.redirectWithFlash(w, r, "/obras/"+id, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/obras/"+id, "success", "Técnico asignado correctamente")
}

func (h *Handler) unassignTecnico(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.UnassignTecnico(r.Context(), actor(r), id, chi.URLParam(r, "tecnicoID")); err != nil {
		h.redirectWithFlash(w, r, "/obras/"+id, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/obras/"+id, "success", "Técnico quitado")
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
