package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiocam/panel/internal/shared"
)

// Repository defines persistence operations for the identity directory.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	Create(ctx context.Context, id, email, passwordHash string) error
	Delete(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateEmail(ctx context.Context, id, email string) error
	Emails(ctx context.Context, ids []string) (map[string]string, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches an identity by case-insensitive email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	var ident Identity
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, email, password_hash, created_at FROM auth_users WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email),
	).Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &ident.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ident, nil
}

// Create inserts a new identity.
func (r *PGRepository) Create(ctx context.Context, id, email, passwordHash string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO auth_users (id, email, password_hash, created_at) VALUES ($1, $2, $3, NOW())`,
		id, email, passwordHash,
	)
	if shared.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

// Delete removes an identity.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the stored hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.updateOne(ctx, `UPDATE auth_users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
}

// UpdateEmail replaces the login email.
func (r *PGRepository) UpdateEmail(ctx context.Context, id, email string) error {
	err := r.updateOne(ctx, `UPDATE auth_users SET email = $2 WHERE id = $1`, id, email)
	if shared.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

// Emails maps identity ids to login emails. Unknown ids are omitted.
func (r *PGRepository) Emails(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id::text, email FROM auth_users WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, err
		}
		out[id] = email
	}
	return out, rows.Err()
}

func (r *PGRepository) updateOne(ctx context.Context, query, id, value string) error {
	if _, err := uuid.Parse(id); err != nil {
		return shared.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, query, id, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
