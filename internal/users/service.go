package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fiocam/panel/internal/auth"
	"github.com/fiocam/panel/internal/rbac"
	"github.com/fiocam/panel/internal/shared"
)

// Directory is the identity directory; *auth.Service satisfies it.
type Directory interface {
	Authenticate(ctx context.Context, email, password string) (*auth.Identity, error)
	CreateIdentity(ctx context.Context, email, password string) (string, error)
	DeleteIdentity(ctx context.Context, id string) error
	ChangePassword(ctx context.Context, id, password string) error
	ChangeEmail(ctx context.Context, id, email string) error
	Emails(ctx context.Context, ids []string) (map[string]string, error)
}

// RoleCache drops cached roles after a profile changes.
type RoleCache interface {
	Forget(ctx context.Context, principalID string)
}

// Service handles user management rules.
type Service struct {
	repo     Repository
	dir      Directory
	roles    RoleCache
	audit    shared.AuditRecorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds Service instance. roles and audit may be nil.
func NewService(repo Repository, dir Directory, roles RoleCache, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, dir: dir, roles: roles, audit: audit, logger: logger, validate: validator.New()}
}

// CreateUser creates the login and then the profile in the table chosen by
// role. The login is removed again when the profile cannot be stored.
func (s *Service) CreateUser(ctx context.Context, actorID string, in CreateUserInput) (Profile, error) {
	if err := s.check(in); err != nil {
		return Profile{}, err
	}
	role := rbac.NormalizeRole(in.Rol)
	if !role.Valid() {
		return Profile{}, &shared.ValidationError{Field: "rol", Message: "Rol inválido"}
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	authID, err := s.dir.CreateIdentity(ctx, email, in.Password)
	if err != nil {
		return Profile{}, fmt.Errorf("create identity: %w", err)
	}

	p := Profile{
		AuthUserID: authID,
		Nombre:     strings.TrimSpace(in.Nombre),
		Apellido:   strings.TrimSpace(in.Apellido),
		Role:       role,
		Kind:       KindFor(role),
		LoginEmail: email,
	}
	if p.Kind == KindAdmin {
		p.WorkEmail = strings.TrimSpace(in.CorreoLaboral)
	} else {
		p.DNI = strings.TrimSpace(in.DNI)
	}

	created, err := s.repo.Insert(ctx, p)
	if err != nil {
		if delErr := s.dir.DeleteIdentity(context.WithoutCancel(ctx), authID); delErr != nil {
			s.logger.Error("rollback identity", slog.String("auth_user_id", authID), slog.Any("error", delErr))
		}
		return Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	created.LoginEmail = p.LoginEmail
	s.record(ctx, actorID, "user.create", created.ID, map[string]any{"rol": string(role), "tabla": string(created.Kind)})
	return created, nil
}

// DeleteUser removes the profile and then the login. The profile goes first
// so that a failed identity delete leaves a login without a role, which the
// gate rejects. Profiles cascade with their identity, so a profile already
// gone after the identity delete is not an error.
func (s *Service) DeleteUser(ctx context.Context, actorID string, kind Kind, id string) error {
	p, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if p.AuthUserID == actorID {
		return &shared.ValidationError{Message: "No podés eliminar tu propio usuario"}
	}
	defer s.forget(context.WithoutCancel(ctx), p.AuthUserID)

	if err := s.repo.Delete(ctx, kind, id); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("delete profile: %w", err)
	}
	if err := s.dir.DeleteIdentity(ctx, p.AuthUserID); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("delete identity: %w", err)
	}
	s.record(ctx, actorID, "user.delete", id, map[string]any{"tabla": string(kind)})
	return nil
}

// UpdateCredentials changes the password and/or login email of authUserID.
func (s *Service) UpdateCredentials(ctx context.Context, actorID, authUserID string, in CredentialsInput) error {
	if strings.TrimSpace(authUserID) == "" {
		return &shared.ValidationError{Field: "auth_user_id", Message: "auth_user_id requerido"}
	}
	if in.Password == "" && in.Email == "" {
		return &shared.ValidationError{Message: "Nada para actualizar"}
	}
	if err := s.check(in); err != nil {
		return err
	}
	if in.Password != "" {
		if err := s.dir.ChangePassword(ctx, authUserID, in.Password); err != nil {
			return err
		}
	}
	if in.Email != "" {
		if err := s.dir.ChangeEmail(ctx, authUserID, in.Email); err != nil {
			return err
		}
	}
	s.record(ctx, actorID, "user.credentials", authUserID, map[string]any{"password": in.Password != "", "email": in.Email != ""})
	return nil
}

// ChangePassword lets principalID replace its own password after proving the
// current one.
func (s *Service) ChangePassword(ctx context.Context, principalID string, in PasswordChange) error {
	if err := s.check(in); err != nil {
		return err
	}
	if in.New != in.Confirm {
		return &shared.ValidationError{Field: "confirm", Message: "Las contraseñas nuevas no coinciden"}
	}
	emails, err := s.dir.Emails(ctx, []string{principalID})
	if err != nil {
		return err
	}
	email, ok := emails[principalID]
	if !ok {
		return shared.ErrNotFound
	}
	if _, err := s.dir.Authenticate(ctx, email, in.Current); err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			return &shared.ValidationError{Field: "current", Message: "Contraseña actual incorrecta"}
		}
		return err
	}
	if err := s.dir.ChangePassword(ctx, principalID, in.New); err != nil {
		return err
	}
	s.record(ctx, principalID, "user.password", principalID, nil)
	return nil
}

// List returns the profiles of kind with their login email.
func (s *Service) List(ctx context.Context, kind Kind, search string) ([]Profile, error) {
	profiles, err := s.repo.List(ctx, kind, strings.TrimSpace(search))
	if err != nil {
		return nil, err
	}
	if err := s.enrich(ctx, profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// Get loads one profile.
func (s *Service) Get(ctx context.Context, kind Kind, id string) (Profile, error) {
	return s.repo.Get(ctx, kind, id)
}

// Own returns the profile of principalID.
func (s *Service) Own(ctx context.Context, principalID string) (Profile, error) {
	p, err := s.repo.ByAuthUser(ctx, principalID)
	if err != nil {
		return Profile{}, err
	}
	list := []Profile{p}
	if err := s.enrich(ctx, list); err != nil {
		return Profile{}, err
	}
	return list[0], nil
}

// UpdateOwn edits the profile of principalID.
func (s *Service) UpdateOwn(ctx context.Context, principalID string, upd ProfileUpdate) error {
	p, err := s.repo.ByAuthUser(ctx, principalID)
	if err != nil {
		return err
	}
	return s.UpdateProfile(ctx, principalID, p.Kind, p.ID, upd)
}

// UpdateProfile edits any profile.
func (s *Service) UpdateProfile(ctx context.Context, actorID string, kind Kind, id string, upd ProfileUpdate) error {
	upd.Nombre = strings.TrimSpace(upd.Nombre)
	upd.Apellido = strings.TrimSpace(upd.Apellido)
	if err := s.check(upd); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, kind, id, upd); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.update", id, map[string]any{"tabla": string(kind)})
	return nil
}

// ChangeRole assigns a new role and drops the cached role of the owner.
func (s *Service) ChangeRole(ctx context.Context, actorID string, kind Kind, id, rawRole string) (Profile, error) {
	role := rbac.NormalizeRole(rawRole)
	if !role.Valid() {
		return Profile{}, &shared.ValidationError{Field: "rol", Message: "Rol inválido"}
	}
	p, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		return Profile{}, err
	}
	if p.AuthUserID == actorID && role != p.Role {
		return Profile{}, &shared.ValidationError{Field: "rol", Message: "No podés cambiar tu propio rol"}
	}
	if p.Role == role {
		return p, nil
	}
	updated, err := s.repo.ChangeRole(ctx, p, role)
	if err != nil {
		return Profile{}, err
	}
	s.forget(ctx, p.AuthUserID)
	s.record(ctx, actorID, "user.role", updated.ID, map[string]any{"de": string(p.Role), "a": string(role)})
	return updated, nil
}

func (s *Service) enrich(ctx context.Context, profiles []Profile) error {
	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if p.AuthUserID != "" {
			ids = append(ids, p.AuthUserID)
		}
	}
	emails, err := s.dir.Emails(ctx, ids)
	if err != nil {
		return fmt.Errorf("load login emails: %w", err)
	}
	for i := range profiles {
		if email, ok := emails[profiles[i].AuthUserID]; ok {
			profiles[i].LoginEmail = email
		} else {
			profiles[i].LoginEmail = MissingEmail
		}
	}
	return nil
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &shared.ValidationError{Field: strings.ToLower(fe.Field()), Message: fieldMessage(fe)}
		}
		return err
	}
	return nil
}

func (s *Service) forget(ctx context.Context, principalID string) {
	if s.roles != nil && principalID != "" {
		s.roles.Forget(ctx, principalID)
	}
}

func (s *Service) record(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user", EntityID: entityID, Meta: meta})
	if err != nil {
		s.logger.Warn("audit", slog.String("action", action), slog.Any("error", err))
	}
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return "El campo " + field + " es obligatorio"
	case "email":
		return "Email inválido"
	case "min":
		return "El campo " + field + " debe tener al menos " + fe.Param() + " caracteres"
	case "max":
		return "El campo " + field + " admite hasta " + fe.Param() + " caracteres"
	case "url":
		return "URL inválida"
	default:
		return "Valor inválido en " + field
	}
}
