package locations

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiocam/panel/internal/platform/db"
)

// Repository defines location persistence.
type Repository interface {
	Latest(ctx context.Context) ([]Point, error)
	Since(ctx context.Context, since time.Time) ([]Point, error)
	Tecnicos(ctx context.Context, limit int) ([]Tecnico, error)
	Reset(ctx context.Context, tecnicoIDs []string) error
	Insert(ctx context.Context, points []Point) error
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const pointColumns = `l.tecnico_id::text, TRIM(u.nombre || ' ' || COALESCE(u.apellido, '')),
	l.lat, l.lng, COALESCE(l.velocidad, 0), COALESCE(l.ruta_activa, false), l.tomado_en
	FROM ubicacion_tecnico l JOIN app_user u ON u.id = l.tecnico_id`

func scanPoints(rows pgx.Rows) ([]Point, error) {
	defer rows.Close()
	var out []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.TecnicoID, &p.Tecnico, &p.Lat, &p.Lng, &p.Velocidad, &p.RutaActiva, &p.TomadoEn); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Latest returns the newest position of every technician.
func (r *repository) Latest(ctx context.Context) ([]Point, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT ON (l.tecnico_id) `+pointColumns+`
		ORDER BY l.tecnico_id, l.tomado_en DESC`)
	if err != nil {
		return nil, err
	}
	return scanPoints(rows)
}

// Since returns positions taken after since, oldest first.
func (r *repository) Since(ctx context.Context, since time.Time) ([]Point, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pointColumns+` WHERE l.tomado_en >= $1 ORDER BY l.tomado_en ASC`, since)
	if err != nil {
		return nil, err
	}
	return scanPoints(rows)
}

func (r *repository) Tecnicos(ctx context.Context, limit int) ([]Tecnico, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, nombre, COALESCE(apellido, '') FROM app_user WHERE rol = 'tecnico' ORDER BY nombre, apellido LIMIT $1`, limit)
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

// Reset removes the stored positions of the given technicians.
func (r *repository) Reset(ctx context.Context, tecnicoIDs []string) error {
	if len(tecnicoIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM ubicacion_tecnico WHERE tecnico_id::text = ANY($1)`, tecnicoIDs)
	return err
}

// Insert stores one step of positions atomically.
func (r *repository) Insert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range points {
			batch.Queue(
				`INSERT INTO ubicacion_tecnico (tecnico_id, lat, lng, velocidad, ruta_activa, tomado_en) VALUES ($1, $2, $3, $4, $5, $6)`,
				p.TecnicoID, p.Lat, p.Lng, p.Velocidad, p.RutaActiva, p.TomadoEn)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// Prune deletes positions taken before the cutoff.
func (r *repository) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ubicacion_tecnico WHERE tomado_en < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
