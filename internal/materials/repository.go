package materials

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiocam/panel/internal/platform/db"
	"github.com/fiocam/panel/internal/shared"
)

// Repository defines catalog persistence.
type Repository interface {
	List(ctx context.Context, search string) ([]Material, error)
	Upsert(ctx context.Context, in MaterialInput) (Material, error)
	Update(ctx context.Context, id string, in MaterialInput) error
	Delete(ctx context.Context, id string) error
	ObraNombre(ctx context.Context, obraID string) (string, error)
	Planned(ctx context.Context, obraID string) (map[string]float64, error)
	ReplacePlan(ctx context.Context, obraID string, quantities map[string]float64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const materialColumns = `id::text, codigo, COALESCE(descripcion, ''), COALESCE(unidad, ''), COALESCE(abreviacion, ''), activo`

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.Codigo, &m.Descripcion, &m.Unidad, &m.Abreviacion, &m.Activo)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, shared.ErrNotFound
	}
	return m, err
}

func (r *repository) List(ctx context.Context, search string) ([]Material, error) {
	query := `SELECT ` + materialColumns + ` FROM material WHERE 1=1`
	args := []any{}
	if search != "" {
		args = append(args, "%"+search+"%")
		n := strconv.Itoa(len(args))
		query += ` AND (codigo ILIKE $` + n + ` OR descripcion ILIKE $` + n + `)`
	}
	query += ` ORDER BY codigo`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upsert inserts a material or refreshes the one with the same codigo.
func (r *repository) Upsert(ctx context.Context, in MaterialInput) (Material, error) {
	return scanMaterial(r.pool.QueryRow(ctx,
		`INSERT INTO material (id, codigo, descripcion, unidad, abreviacion, activo)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		 ON CONFLICT (codigo) DO UPDATE SET
		   descripcion = EXCLUDED.descripcion,
		   unidad = EXCLUDED.unidad,
		   abreviacion = EXCLUDED.abreviacion,
		   activo = EXCLUDED.activo
		 RETURNING `+materialColumns,
		uuid.NewString(), in.Codigo, in.Descripcion, in.Unidad, in.Abreviacion, in.Activo))
}

func (r *repository) Update(ctx context.Context, id string, in MaterialInput) error {
	if _, err := uuid.Parse(id); err != nil {
		return shared.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE material SET codigo = $2, descripcion = $3, unidad = NULLIF($4, ''), abreviacion = NULLIF($5, ''), activo = $6 WHERE id = $1`,
		id, in.Codigo, in.Descripcion, in.Unidad, in.Abreviacion, in.Activo)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return shared.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM material WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) ObraNombre(ctx context.Context, obraID string) (string, error) {
	if _, err := uuid.Parse(obraID); err != nil {
		return "", shared.ErrNotFound
	}
	var nombre string
	err := r.pool.QueryRow(ctx, `SELECT nombre FROM obra WHERE id = $1`, obraID).Scan(&nombre)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return nombre, err
}

func (r *repository) Planned(ctx context.Context, obraID string) (map[string]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT material_id::text, cantidad_planificada FROM obra_material WHERE obra_id = $1`, obraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var id string
		var qty float64
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, rows.Err()
}

// ReplacePlan clears the site plan and writes the new lines in one
// transaction.
func (r *repository) ReplacePlan(ctx context.Context, obraID string, quantities map[string]float64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM obra_material WHERE obra_id = $1`, obraID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for materialID, qty := range quantities {
			batch.Queue(`INSERT INTO obra_material (obra_id, material_id, cantidad_planificada) VALUES ($1, $2, $3)`, obraID, materialID, qty)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}
