package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiocam/panel/internal/platform/db"
	"github.com/fiocam/panel/internal/rbac"
	"github.com/fiocam/panel/internal/shared"
)

// Repository defines persistence for profile rows.
type Repository interface {
	Insert(ctx context.Context, p Profile) (Profile, error)
	Get(ctx context.Context, kind Kind, id string) (Profile, error)
	ByAuthUser(ctx context.Context, authUserID string) (Profile, error)
	List(ctx context.Context, kind Kind, search string) ([]Profile, error)
	Update(ctx context.Context, kind Kind, id string, upd ProfileUpdate) error
	Delete(ctx context.Context, kind Kind, id string) error
	ChangeRole(ctx context.Context, p Profile, role rbac.Role) (Profile, error)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGRepository stores profiles in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert stores p in the table of its kind.
func (r *PGRepository) Insert(ctx context.Context, p Profile) (Profile, error) {
	return insertProfile(ctx, r.pool, p)
}

func insertProfile(ctx context.Context, q querier, p Profile) (Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var err error
	switch p.Kind {
	case KindAdmin:
		err = q.QueryRow(ctx,
			`INSERT INTO app_user_admin (id, auth_user_id, nombre, apellido, email, rol, avatar_url, created_at)
			 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NOW()) RETURNING created_at`,
			p.ID, p.AuthUserID, p.Nombre, p.Apellido, p.WorkEmail, string(p.Role), p.AvatarURL,
		).Scan(&p.CreatedAt)
	case KindTecnico:
		err = q.QueryRow(ctx,
			`INSERT INTO app_user (id, auth_user_id, nombre, apellido, dni, rol, created_at)
			 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NOW()) RETURNING created_at`,
			p.ID, p.AuthUserID, p.Nombre, p.Apellido, p.DNI, string(p.Role),
		).Scan(&p.CreatedAt)
	default:
		return Profile{}, fmt.Errorf("users: unknown kind %q", p.Kind)
	}
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Profile{}, shared.ErrDuplicate
		}
		return Profile{}, err
	}
	return p, nil
}

const (
	adminColumns   = `id::text, auth_user_id::text, nombre, COALESCE(apellido, ''), '' AS dni, COALESCE(email, ''), COALESCE(rol::text, ''), COALESCE(avatar_url, ''), created_at`
	tecnicoColumns = `id::text, auth_user_id::text, nombre, COALESCE(apellido, ''), COALESCE(dni, ''), '' AS email, COALESCE(rol::text, ''), '' AS avatar_url, created_at`
)

func tableFor(kind Kind) (table, columns string, err error) {
	switch kind {
	case KindAdmin:
		return "app_user_admin", adminColumns, nil
	case KindTecnico:
		return "app_user", tecnicoColumns, nil
	default:
		return "", "", fmt.Errorf("users: unknown kind %q", kind)
	}
}

func scanProfile(row pgx.Row, kind Kind) (Profile, error) {
	var p Profile
	var role string
	if err := row.Scan(&p.ID, &p.AuthUserID, &p.Nombre, &p.Apellido, &p.DNI, &p.WorkEmail, &role, &p.AvatarURL, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		return Profile{}, err
	}
	p.Role = rbac.NormalizeRole(role)
	p.Kind = kind
	return p, nil
}

// Get loads one profile.
func (r *PGRepository) Get(ctx context.Context, kind Kind, id string) (Profile, error) {
	table, columns, err := tableFor(kind)
	if err != nil {
		return Profile{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return Profile{}, shared.ErrNotFound
	}
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM `+table+` WHERE id = $1`, id), kind)
}

// ByAuthUser loads the profile owned by a login, admin table first.
func (r *PGRepository) ByAuthUser(ctx context.Context, authUserID string) (Profile, error) {
	if _, err := uuid.Parse(authUserID); err != nil {
		return Profile{}, shared.ErrNotFound
	}
	p, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM app_user_admin WHERE auth_user_id = $1`, authUserID), KindAdmin)
	if !errors.Is(err, shared.ErrNotFound) {
		return p, err
	}
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+tecnicoColumns+` FROM app_user WHERE auth_user_id = $1`, authUserID), KindTecnico)
}

// List returns the profiles of kind ordered by name, optionally filtered.
func (r *PGRepository) List(ctx context.Context, kind Kind, search string) ([]Profile, error) {
	table, columns, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + columns + ` FROM ` + table + ` WHERE 1=1`
	args := []any{}
	if search != "" {
		args = append(args, "%"+search+"%")
		n := strconv.Itoa(len(args))
		query += ` AND (nombre ILIKE $` + n + ` OR apellido ILIKE $` + n + `)`
	}
	query += ` ORDER BY nombre, apellido`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update replaces the editable fields of a profile.
func (r *PGRepository) Update(ctx context.Context, kind Kind, id string, upd ProfileUpdate) error {
	var tag pgconn.CommandTag
	var err error
	switch kind {
	case KindAdmin:
		tag, err = r.pool.Exec(ctx,
			`UPDATE app_user_admin SET nombre = $2, apellido = $3, email = NULLIF($4, ''), avatar_url = NULLIF($5, '') WHERE id = $1`,
			id, upd.Nombre, upd.Apellido, upd.WorkEmail, upd.AvatarURL)
	case KindTecnico:
		tag, err = r.pool.Exec(ctx,
			`UPDATE app_user SET nombre = $2, apellido = $3, dni = NULLIF($4, '') WHERE id = $1`,
			id, upd.Nombre, upd.Apellido, upd.DNI)
	default:
		return fmt.Errorf("users: unknown kind %q", kind)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a profile row.
func (r *PGRepository) Delete(ctx context.Context, kind Kind, id string) error {
	return deleteProfile(ctx, r.pool, kind, id)
}

func deleteProfile(ctx context.Context, q querier, kind Kind, id string) error {
	table, _, err := tableFor(kind)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ChangeRole updates the role in place, or moves the profile to the other
// table when the role changes between staff and technician.
func (r *PGRepository) ChangeRole(ctx context.Context, p Profile, role rbac.Role) (Profile, error) {
	target := KindFor(role)
	if target == p.Kind {
		table, _, err := tableFor(p.Kind)
		if err != nil {
			return Profile{}, err
		}
		tag, err := r.pool.Exec(ctx, `UPDATE `+table+` SET rol = $2 WHERE id = $1`, p.ID, string(role))
		if err != nil {
			return Profile{}, err
		}
		if tag.RowsAffected() == 0 {
			return Profile{}, shared.ErrNotFound
		}
		p.Role = role
		return p, nil
	}

	moved := p
	moved.ID = ""
	moved.Kind = target
	moved.Role = role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := deleteProfile(ctx, tx, p.Kind, p.ID); err != nil {
			return err
		}
		var err error
		moved, err = insertProfile(ctx, tx, moved)
		return err
	})
	if err != nil {
		return Profile{}, err
	}
	return moved, nil
}

var _ Repository = (*PGRepository)(nil)
