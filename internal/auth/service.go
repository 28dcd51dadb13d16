package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fiocam/panel/internal/shared"
)

// Service wraps authentication and identity administration rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	ident, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return ident, nil
}

// CreateIdentity registers a confirmed login and returns its principal id.
func (s *Service) CreateIdentity(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", &shared.ValidationError{Field: "email", Message: "El email es obligatorio"}
	}
	hash, err := hashPassword(password)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := s.repo.Create(ctx, id, email, hash); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteIdentity removes a login.
func (s *Service) DeleteIdentity(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// ChangePassword replaces the password of id.
func (s *Service) ChangePassword(ctx context.Context, id, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, id, hash)
}

// ChangeEmail replaces the login email of id.
func (s *Service) ChangeEmail(ctx context.Context, id, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return &shared.ValidationError{Field: "email", Message: "El email es obligatorio"}
	}
	return s.repo.UpdateEmail(ctx, id, email)
}

// Emails returns login emails keyed by principal id.
func (s *Service) Emails(ctx context.Context, ids []string) (map[string]string, error) {
	return s.repo.Emails(ctx, ids)
}

func hashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", &shared.ValidationError{Field: "password", Message: "La contraseña debe tener al menos 6 caracteres"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
