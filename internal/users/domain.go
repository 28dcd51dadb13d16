package users

import (
	"time"

	"github.com/fiocam/panel/internal/rbac"
)

// Kind names the profile table a user lives in.
type Kind string

const (
	// KindAdmin profiles are stored in app_user_admin.
	KindAdmin Kind = "admin"
	// KindTecnico profiles are stored in app_user.
	KindTecnico Kind = "tecnico"
)

// KindFor returns the profile table for role.
func KindFor(role rbac.Role) Kind {
	if role.IsAdministrative() {
		return KindAdmin
	}
	return KindTecnico
}

// ParseKind accepts the kind as sent by forms and API clients.
func ParseKind(raw string) (Kind, bool) {
	switch Kind(raw) {
	case KindAdmin, KindTecnico:
		return Kind(raw), true
	default:
		return "", false
	}
}

// Profile is a user as seen by the panel: a profile row plus its login email.
type Profile struct {
	ID         string    `json:"id"`
	AuthUserID string    `json:"auth_user_id"`
	Nombre     string    `json:"nombre"`
	Apellido   string    `json:"apellido"`
	DNI        string    `json:"dni,omitempty"`
	WorkEmail  string    `json:"correo_laboral,omitempty"`
	LoginEmail string    `json:"email"`
	Role       rbac.Role `json:"rol"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Kind       Kind      `json:"tipo"`
}

// FullName joins first and last name.
func (p Profile) FullName() string {
	switch {
	case p.Apellido == "":
		return p.Nombre
	case p.Nombre == "":
		return p.Apellido
	default:
		return p.Nombre + " " + p.Apellido
	}
}

// MissingEmail is shown when a profile has no matching login.
const MissingEmail = "—"

// CreateUserInput is the payload for creating a login plus its profile.
type CreateUserInput struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,min=6"`
	Nombre        string `json:"nombre" validate:"required,max=120"`
	Apellido      string `json:"apellido" validate:"max=120"`
	DNI           string `json:"dni" validate:"omitempty,max=20"`
	Rol           string `json:"rol" validate:"required"`
	CorreoLaboral string `json:"correo_laboral" validate:"omitempty,email"`
}

// CredentialsInput updates the password and/or email of a login.
type CredentialsInput struct {
	Password string `json:"password" validate:"omitempty,min=6"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// ProfileUpdate carries editable profile fields.
type ProfileUpdate struct {
	Nombre    string `validate:"required,max=120"`
	Apellido  string `validate:"max=120"`
	DNI       string `validate:"omitempty,max=20"`
	WorkEmail string `validate:"omitempty,email"`
	AvatarURL string `validate:"omitempty,url"`
}

// PasswordChange is the self-service password form.
type PasswordChange struct {
	Current string `json:"current" validate:"required"`
	New     string `json:"new" validate:"required,min=6"`
	Confirm string `json:"confirm" validate:"required"`
}
