package sites

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

// Repository defines site persistence.
type Repository interface {
	List(ctx context.Context, search string) ([]Obra, error)
	Get(ctx context.Context, id string) (Obra, error)
	Create(ctx context.Context, in ObraInput) (Obra, error)
	Update(ctx context.Context, id string, in ObraInput) error
	Tecnicos(ctx context.Context, obraIDs []string) (map[string][]Tecnico, error)
	SearchTecnicos(ctx context.Context, search string) ([]Tecnico, error)
	ReplaceTecnicos(ctx context.Context, obraID string, tecnicoIDs []string) error
	AssignTecnico(ctx context.Context, obraID, tecnicoID string) error
	UnassignTecnico(ctx context.Context, obraID, tecnicoID string) error
	Materiales(ctx context.Context, obraID string) ([]PlannedMaterial, error)
	Planos(ctx context.Context, obraID string) ([]Document, error)
	Fotos(ctx context.Context, obraID string) ([]Document, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const obraColumns = `id::text, COALESCE(numero_obra, ''), nombre, COALESCE(cliente, ''), COALESCE(direccion, ''), COALESCE(estado, ''), created_at`

func scanObra(row pgx.Row) (Obra, error) {
	var o Obra
	err := row.Scan(&o.ID, &o.NumeroObra, &o.Nombre, &o.Cliente, &o.Direccion, &o.Estado, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Obra{}, shared.ErrNotFound
	}
	return o, err
}

// List uses a dynamic query for the optional search.
func (r *repository) List(ctx context.Context, search string) ([]Obra, error) {
	query := `SELECT ` + obraColumns + ` FROM obra WHERE 1=1`
	args := []any{}
	if search != "" {
		args = append(args, "%"+search+"%")
		n := strconv.Itoa(len(args))
		query += ` AND (nombre ILIKE $` + n + ` OR cliente ILIKE $` + n + ` OR numero_obra ILIKE $` + n + `)`
	}
	query += ` ORDER BY created_at DESC`

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

func (r *repository) Get(ctx context.Context, id string) (Obra, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Obra{}, shared.ErrNotFound
	}
	return scanObra(r.pool.QueryRow(ctx, `SELECT `+obraColumns+` FROM obra WHERE id = $1`, id))
}

func (r *repository) Create(ctx context.Context, in ObraInput) (Obra, error) {
	o, err := scanObra(r.pool.QueryRow(ctx,
		`INSERT INTO obra (id, numero_obra, nombre, cliente, direccion, estado, created_at)
		 VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NOW())
		 RETURNING `+obraColumns,
		uuid.NewString(), in.NumeroObra, in.Nombre, in.Cliente, in.Direccion, in.Estado))
	if shared.IsUniqueViolation(err) {
		return Obra{}, shared.ErrDuplicate
	}
	return o, err
}

func (r *repository) Update(ctx context.Context, id string, in ObraInput) error {
	if _, err := uuid.Parse(id); err != nil {
		return shared.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE obra SET numero_obra = NULLIF($2, ''), nombre = $3, cliente = NULLIF($4, ''), direccion = NULLIF($5, ''), estado = NULLIF($6, '') WHERE id = $1`,
		id, in.NumeroObra, in.Nombre, in.Cliente, in.Direccion, in.Estado)
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

// Tecnicos returns the assigned technicians keyed by site id.
func (r *repository) Tecnicos(ctx context.Context, obraIDs []string) (map[string][]Tecnico, error) {
	out := make(map[string][]Tecnico, len(obraIDs))
	if len(obraIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT ot.obra_id::text, u.id::text, u.nombre, COALESCE(u.apellido, '')
		 FROM obra_tecnico ot JOIN app_user u ON u.id = ot.tecnico_id
		 WHERE ot.obra_id::text = ANY($1)
		 ORDER BY u.nombre, u.apellido`, obraIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var obraID string
		var t Tecnico
		if err := rows.Scan(&obraID, &t.ID, &t.Nombre, &t.Apellido); err != nil {
			return nil, err
		}
		out[obraID] = append(out[obraID], t)
	}
	return out, rows.Err()
}

func (r *repository) SearchTecnicos(ctx context.Context, search string) ([]Tecnico, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, nombre, COALESCE(apellido, '') FROM app_user
		 WHERE lower(rol::text) = 'tecnico' AND (nombre ILIKE $1 OR apellido ILIKE $1)
		 ORDER BY nombre, apellido LIMIT 20`, "%"+search+"%")
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

// ReplaceTecnicos swaps the whole assignment in one transaction.
func (r *repository) ReplaceTecnicos(ctx context.Context, obraID string, tecnicoIDs []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM obra_tecnico WHERE obra_id = $1`, obraID); err != nil {
			return err
		}
		for _, id := range tecnicoIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO obra_tecnico (obra_id, tecnico_id) VALUES ($1, $2)`, obraID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repository) AssignTecnico(ctx context.Context, obraID, tecnicoID string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO obra_tecnico (obra_id, tecnico_id) VALUES ($1, $2)`, obraID, tecnicoID)
	if shared.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

func (r *repository) UnassignTecnico(ctx context.Context, obraID, tecnicoID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM obra_tecnico WHERE obra_id = $1 AND tecnico_id = $2`, obraID, tecnicoID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Materiales(ctx context.Context, obraID string) ([]PlannedMaterial, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.id::text, m.codigo, COALESCE(m.descripcion, ''), COALESCE(m.unidad, ''), om.cantidad_planificada
		 FROM obra_material om JOIN material m ON m.id = om.material_id
		 WHERE om.obra_id = $1 ORDER BY m.codigo`, obraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlannedMaterial
	for rows.Next() {
		var m PlannedMaterial
		if err := rows.Scan(&m.MaterialID, &m.Codigo, &m.Descripcion, &m.Unidad, &m.CantidadPlanificada); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) Planos(ctx context.Context, obraID string) ([]Document, error) {
	return r.documents(ctx, `SELECT id::text, COALESCE(nombre, ''), '', storage_path FROM plano WHERE obra_id = $1 ORDER BY nombre`, obraID)
}

func (r *repository) Fotos(ctx context.Context, obraID string) ([]Document, error) {
	return r.documents(ctx, `SELECT id::text, '', COALESCE(categoria, ''), storage_path FROM foto WHERE obra_id = $1 ORDER BY tomado_en DESC`, obraID)
}

func (r *repository) documents(ctx context.Context, query, obraID string) ([]Document, error) {
	rows, err := r.pool.Query(ctx, query, obraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Nombre, &d.Categoria, &d.StoragePath); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
