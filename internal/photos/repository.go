package photos

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiocam/panel/internal/shared"
)

// Repository defines photo persistence.
type Repository interface {
	Obras(ctx context.Context, search string) ([]Obra, error)
	Obra(ctx context.Context, id string) (Obra, error)
	Captures(ctx context.Context) ([]Capture, error)
	Fotos(ctx context.Context, obraID string) ([]Foto, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Obras(ctx context.Context, search string) ([]Obra, error) {
	query := `SELECT id::text, COALESCE(numero_obra, ''), nombre FROM obra WHERE 1=1`
	args := []any{}
	if search != "" {
		args = append(args, "%"+search+"%")
		n := strconv.Itoa(len(args))
		query += ` AND (nombre ILIKE $` + n + ` OR numero_obra ILIKE $` + n + `)`
	}
	query += ` ORDER BY numero_obra ASC NULLS LAST`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Obra
	for rows.Next() {
		var o Obra
		if err := rows.Scan(&o.ID, &o.NumeroObra, &o.Nombre); err != nil {
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
	var o Obra
	err := r.pool.QueryRow(ctx, `SELECT id::text, COALESCE(numero_obra, ''), nombre FROM obra WHERE id = $1`, id).
		Scan(&o.ID, &o.NumeroObra, &o.Nombre)
	if errors.Is(err, pgx.ErrNoRows) {
		return Obra{}, shared.ErrNotFound
	}
	return o, err
}

// Captures returns every dated photo; day buckets are computed by the caller
// in the panel's time zone.
func (r *repository) Captures(ctx context.Context) ([]Capture, error) {
	rows, err := r.pool.Query(ctx, `SELECT obra_id::text, tomado_en FROM foto WHERE obra_id IS NOT NULL AND tomado_en IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Capture
	for rows.Next() {
		var c Capture
		if err := rows.Scan(&c.ObraID, &c.TomadoEn); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Fotos(ctx context.Context, obraID string) ([]Foto, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT f.id::text, COALESCE(f.nombre, ''), COALESCE(f.categoria, ''), f.storage_path,
		        f.tomado_en, f.lat, f.lon, COALESCE(f.tecnico_id::text, ''),
		        COALESCE(TRIM(u.nombre || ' ' || COALESCE(u.apellido, '')), '')
		 FROM foto f LEFT JOIN app_user u ON u.id = f.tecnico_id
		 WHERE f.obra_id = $1
		 ORDER BY f.tomado_en DESC NULLS LAST`, obraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Foto
	for rows.Next() {
		var f Foto
		var tomado *time.Time
		if err := rows.Scan(&f.ID, &f.Nombre, &f.Categoria, &f.StoragePath, &tomado, &f.Lat, &f.Lon, &f.TecnicoID, &f.Tecnico); err != nil {
			return nil, err
		}
		if tomado != nil {
			f.TomadoEn = *tomado
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
