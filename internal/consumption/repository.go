package consumption

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

// Repository defines consumption persistence.
type Repository interface {
	Obras(ctx context.Context, search string) ([]Obra, error)
	Obra(ctx context.Context, id string) (Obra, error)
	Planned(ctx context.Context, obraID string) ([]Material, error)
	Tecnicos(ctx context.Context) ([]Tecnico, error)
	History(ctx context.Context, obraID string, limit int) ([]Entry, error)
	Insert(ctx context.Context, rows []Row) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const obraColumns = `id::text, COALESCE(numero_obra, ''), nombre, COALESCE(cliente, ''), COALESCE(estado, ''), created_at`

func scanObra(row pgx.Row) (Obra, error) {
	var o Obra
	err := row.Scan(&o.ID, &o.NumeroObra, &o.Nombre, &o.Cliente, &o.Estado, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Obra{}, shared.ErrNotFound
	}
	return o, err
}

func (r *repository) Obras(ctx context.Context, search string) ([]Obra, error) {
	query := `SELECT ` + obraColumns + ` FROM obra WHERE 1=1`
	args := []any{}
	if search != "" {
		args = append(args, "%"+search+"%")
		n := strconv.Itoa(len(args))
		query += ` AND (nombre ILIKE $` + n + ` OR cliente ILIKE $` + n + ` OR numero_obra ILIKE $` + n + `)`
	}
	query += ` ORDER BY numero_obra ASC NULLS LAST`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Obra
	for rows.Next() {
		o, err := scanObra(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *repository) Obra(ctx context.Context, id string) (Obra, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Obra{}, shared.ErrNotFound
	}
	return scanObra(r.pool.QueryRow(ctx, `SELECT `+obraColumns+` FROM obra WHERE id = $1`, id))
}

// Planned lists the site's planned materials with what was consumed so far.
func (r *repository) Planned(ctx context.Context, obraID string) ([]Material, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.id::text, m.codigo, COALESCE(m.descripcion, ''), COALESCE(m.unidad, ''),
		        COALESCE(om.cantidad_planificada, 0),
		        COALESCE((SELECT SUM(c.cantidad) FROM consumo c WHERE c.obra_id = om.obra_id AND c.material_id = m.id), 0)
		 FROM obra_material om JOIN material m ON m.id = om.material_id
		 WHERE om.obra_id = $1
		 ORDER BY m.codigo`, obraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Material
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.Codigo, &m.Descripcion, &m.Unidad, &m.CantidadPlanificada, &m.Consumido); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) Tecnicos(ctx context.Context) ([]Tecnico, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, nombre, COALESCE(apellido, '') FROM app_user WHERE rol = 'tecnico' ORDER BY nombre, apellido`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tecnico
	for rows.Next() {
		var t Tecnico
		if err := rows.Scan(&t.ID, &t.Nombre, &t.Apellido); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) History(ctx context.Context, obraID string, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.obra_id::text, c.material_id::text, c.tecnico_id::text, c.cantidad, c.tomado_en,
		        COALESCE(c.observacion, ''), m.codigo || ' - ' || COALESCE(m.descripcion, ''),
		        TRIM(u.nombre || ' ' || COALESCE(u.apellido, ''))
		 FROM consumo c
		 JOIN material m ON m.id = c.material_id
		 LEFT JOIN app_user u ON u.id = c.tecnico_id
		 WHERE c.obra_id = $1
		 ORDER BY c.tomado_en DESC
		 LIMIT $2`, obraID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var tecnico *string
		if err := rows.Scan(&e.ObraID, &e.MaterialID, &e.TecnicoID, &e.Cantidad, &e.TomadoEn, &e.Observacion, &e.Material, &tecnico); err != nil {
			return nil, err
		}
		if tecnico != nil {
			e.Tecnico = *tecnico
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Insert stores every row or none.
func (r *repository) Insert(ctx context.Context, rows []Row) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, row := range rows {
			batch.Queue(
				`INSERT INTO consumo (id, obra_id, material_id, tecnico_id, cantidad, tomado_en, observacion)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				uuid.NewString(), row.ObraID, row.MaterialID, row.TecnicoID, row.Cantidad, row.TomadoEn, row.Observacion)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}
