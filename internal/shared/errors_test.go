package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestUserSafeMessage(t *testing.T) {
	assert.Empty(t, UserSafeMessage(nil))
	assert.Equal(t, "El nombre es obligatorio", UserSafeMessage(&ValidationError{Field: "nombre", Message: "El nombre es obligatorio"}))
	assert.Equal(t, "El registro no existe", UserSafeMessage(fmt.Errorf("obra: %w", ErrNotFound)))
	assert.Equal(t, "El registro ya existe", UserSafeMessage(&pgconn.PgError{Code: "23505"}))
	assert.Equal(t, "La operación tardó demasiado, intentá de nuevo", UserSafeMessage(context.DeadlineExceeded))
	assert.Equal(t, "Ocurrió un error inesperado", UserSafeMessage(errors.New("boom")))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(nil))
}

func TestValidationErrorMessage(t *testing.T) {
	assert.Equal(t, "codigo: requerido", (&ValidationError{Field: "codigo", Message: "requerido"}).Error())
	assert.Equal(t, "requerido", (&ValidationError{Message: "requerido"}).Error())
}
