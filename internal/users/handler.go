package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fiocam/panel/internal/platform/httpx"
	"github.com/fiocam/panel/internal/rbac"
	"github.com/fiocam/panel/internal/shared"
	"github.com/fiocam/panel/internal/view"
)

// Handler serves the admins, technicians, roles and profile pages together
// with the JSON user API.
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

// MountRoutes registers user routes. Every path sits below a page prefix so
// the access gate covers the API with the same rules as the page.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/admins", h.listAdmins)
	r.Post("/admins", h.createFromForm(KindAdmin, "/admins"))
	r.Post("/admins/{id}/delete", h.deleteFromForm(KindAdmin, "/admins"))
	r.Route("/admins/api", func(r chi.Router) {
		r.Get("/admins", h.apiList(KindAdmin))
		r.Post("/users", h.apiCreate)
		r.Delete("/users/{kind}/{id}", h.apiDelete)
		r.Patch("/users/{authUserID}", h.apiCredentials)
	})

	r.Get("/tecnicos", h.listTecnicos)
	r.Post("/tecnicos", h.createFromForm(KindTecnico, "/tecnicos"))
	r.Post("/tecnicos/{id}/delete", h.deleteFromForm(KindTecnico, "/tecnicos"))
	r.Get("/tecnicos/api", h.apiList(KindTecnico))

	r.Get("/roles", h.listRoles)
	r.Post("/roles/{kind}/{id}", h.updateFromRoles)
	r.Post("/roles/{kind}/{id}/password", h.resetPassword)

	r.Get("/perfil", h.showProfile)
	r.Post("/perfil", h.updateProfile)
	r.Post("/perfil/password", h.changePassword)
}

type formErrors map[string]string

func (h *Handler) listAdmins(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r, KindAdmin, "pages/admins.html", "Administradores", formErrors{}, CreateUserInput{}, http.StatusOK)
}

func (h *Handler) listTecnicos(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r, KindTecnico, "pages/tecnicos.html", "Técnicos", formErrors{}, CreateUserInput{Rol: string(rbac.RoleTecnico)}, http.StatusOK)
}

func (h *Handler) renderList(w http.ResponseWriter, r *http.Request, kind Kind, page, title string, errs formErrors, form CreateUserInput, status int) {
	search := r.URL.Query().Get("q")
	profiles, err := h.service.List(r.Context(), kind, search)
	if err != nil {
		h.logger.Error("list users", slog.String("kind", string(kind)), slog.Any("error", err))
		errs["general"] = shared.UserSafeMessage(err)
		status = http.StatusInternalServerError
	}
	form.Password = ""
	h.render(w, r, page, title, map[string]any{
		"Users":  profiles,
		"Search": search,
		"Form":   form,
		"Roles":  roleOptions(kind),
		"Errors": errs,
	}, status)
}

func (h *Handler) createFromForm(kind Kind, back string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		in := CreateUserInput{
			Email:         r.PostFormValue("email"),
			Password:      r.PostFormValue("password"),
			Nombre:        r.PostFormValue("nombre"),
			Apellido:      r.PostFormValue("apellido"),
			DNI:           r.PostFormValue("dni"),
			Rol:           r.PostFormValue("rol"),
			CorreoLaboral: r.PostFormValue("correo_laboral"),
		}
		if kind == KindTecnico {
			in.Rol = string(rbac.RoleTecnico)
		} else if KindFor(rbac.NormalizeRole(in.Rol)) != KindAdmin {
			in.Rol = ""
		}
		if _, err := h.service.CreateUser(r.Context(), actor(r), in); err != nil {
			h.logger.Warn("create user", slog.Any("error", err))
			title := "Administradores"
			page := "pages/admins.html"
			if kind == KindTecnico {
				title, page = "Técnicos", "pages/tecnicos.html"
			}
			h.renderList(w, r, kind, page, title, formErrors{"general": shared.UserSafeMessage(err)}, in, http.StatusBadRequest)
			return
		}
		h.redirectWithFlash(w, r, back, "success", "Usuario creado")
	}
}

func (h *Handler) deleteFromForm(kind Kind, back string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.service.DeleteUser(r.Context(), actor(r), kind, chi.URLParam(r, "id")); err != nil {
			h.logger.Warn("delete user", slog.Any("error", err))
			h.redirectWithFlash(w, r, back, "error", shared.UserSafeMessage(err))
			return
		}
		h.redirectWithFlash(w, r, back, "success", "Usuario eliminado")
	}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	admins, err := h.service.List(ctx, KindAdmin, "")
	if err == nil {
		var tecnicos []Profile
		tecnicos, err = h.service.List(ctx, KindTecnico, "")
		if err == nil {
			h.render(w, r, "pages/roles.html", "Roles", map[string]any{
				"Admins":   admins,
				"Tecnicos": tecnicos,
				"Roles":    allRoles(),
			}, http.StatusOK)
			return
		}
	}
	h.logger.Error("list roles", slog.Any("error", err))
	h.render(w, r, "pages/roles.html", "Roles", map[string]any{
		"Roles":  allRoles(),
		"Errors": formErrors{"general": shared.UserSafeMessage(err)},
	}, http.StatusInternalServerError)
}

func (h *Handler) updateFromRoles(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	upd := ProfileUpdate{
		Nombre:    r.PostFormValue("nombre"),
		Apellido:  r.PostFormValue("apellido"),
		DNI:       r.PostFormValue("dni"),
		WorkEmail: r.PostFormValue("correo_laboral"),
	}
	if err := h.service.UpdateProfile(r.Context(), actor(r), kind, id, upd); err != nil {
		h.redirectWithFlash(w, r, "/roles", "error", shared.UserSafeMessage(err))
		return
	}
	if rol := r.PostFormValue("rol"); rol != "" {
		if _, err := h.service.ChangeRole(r.Context(), actor(r), kind, id, rol); err != nil {
			h.redirectWithFlash(w, r, "/roles", "error", shared.UserSafeMessage(err))
			return
		}
	}
	h.redirectWithFlash(w, r, "/roles", "success", "Usuario actualizado")
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	p, err := h.service.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err == nil {
		err = h.service.UpdateCredentials(r.Context(), actor(r), p.AuthUserID, CredentialsInput{Password: r.PostFormValue("password")})
	}
	if err != nil {
		h.redirectWithFlash(w, r, "/roles", "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/roles", "success", "Contraseña actualizada")
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	h.renderProfile(w, r, formErrors{}, http.StatusOK)
}

func (h *Handler) renderProfile(w http.ResponseWriter, r *http.Request, errs formErrors, status int) {
	p, err := h.service.Own(r.Context(), actor(r))
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("load profile", slog.Any("error", err))
		}
		errs["general"] = "No se encontró el perfil"
		if status == http.StatusOK {
			status = http.StatusNotFound
		}
	}
	h.render(w, r, "pages/perfil.html", "Perfil", map[string]any{"Profile": p, "Found": err == nil, "Errors": errs}, status)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	upd := ProfileUpdate{
		Nombre:    r.PostFormValue("nombre"),
		Apellido:  r.PostFormValue("apellido"),
		DNI:       r.PostFormValue("dni"),
		WorkEmail: r.PostFormValue("correo_laboral"),
		AvatarURL: r.PostFormValue("avatar_url"),
	}
	if err := h.service.UpdateOwn(r.Context(), actor(r), upd); err != nil {
		h.renderProfile(w, r, formErrors{"general": shared.UserSafeMessage(err)}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/perfil", "success", "Perfil actualizado correctamente")
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var in PasswordChange
	isJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
	if isJSON {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		in = PasswordChange{Current: r.PostFormValue("current"), New: r.PostFormValue("new"), Confirm: r.PostFormValue("confirm")}
	}

	err := h.service.ChangePassword(r.Context(), actor(r), in)
	switch {
	case isJSON && err != nil:
		httpx.RespondError(w, err)
	case isJSON:
		httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
	case err != nil:
		h.renderProfile(w, r, formErrors{"password": shared.UserSafeMessage(err)}, http.StatusBadRequest)
	default:
		h.redirectWithFlash(w, r, "/perfil", "success", "Contraseña cambiada correctamente")
	}
}

func (h *Handler) apiList(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profiles, err := h.service.List(r.Context(), kind, r.URL.Query().Get("q"))
		if err != nil {
			h.logger.Error("api list users", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		if profiles == nil {
			profiles = []Profile{}
		}
		httpx.JSON(w, http.StatusOK, profiles)
	}
}

func (h *Handler) apiCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateUserInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CreateUser(r.Context(), actor(r), in)
	if err != nil {
		h.logger.Warn("api create user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"success": true, "userId": p.AuthUserID, "profile": p})
}

func (h *Handler) apiDelete(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	if err := h.service.DeleteUser(r.Context(), actor(r), kind, chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) apiCredentials(w http.ResponseWriter, r *http.Request) {
	var in CredentialsInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.UpdateCredentials(r.Context(), actor(r), chi.URLParam(r, "authUserID"), in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
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
	if sc, ok := rbac.AccessFromContext(r.Context()); ok {
		return sc.PrincipalID
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.Principal()
	}
	return ""
}

func roleOptions(kind Kind) []rbac.Role {
	if kind == KindTecnico {
		return []rbac.Role{rbac.RoleTecnico}
	}
	return rbac.AdminRoles()
}

func allRoles() []rbac.Role {
	return append(rbac.AdminRoles(), rbac.RoleTecnico)
}
