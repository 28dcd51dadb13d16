// Package plans lists site blueprints with short-lived download links.
package plans

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiocam/panel/internal/platform/storage"
	"github.com/fiocam/panel/internal/shared"
)

// Obra is a site that may hold plans.
type Obra struct {
	ID      string
	Nombre  string
	Cliente string
	Estado  string
}

// Plano is a stored blueprint.
type Plano struct {
	ID          string
	Nombre      string
	StoragePath string
	CreatedAt   time.Time
	URL         string
}

// Repository defines plan persistence.
type Repository interface {
	Obras(ctx context.Context, search string) ([]Obra, error)
	Obra(ctx context.Context, id string) (Obra, error)
	Planos(ctx context.Context, obraID string) ([]Plano, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Obras(ctx context.Context, search string) ([]Obra, error) {
	query := `SELECT id::text, nombre, COALESCE(cliente, ''), COALESCE(estado, '') FROM obra WHERE 1=1`
	args := []any{}
	if search != "" {
		args = append(args, "%"+search+"%")
		n := strconv.Itoa(len(args))
		query += ` AND (nombre ILIKE $` + n + ` OR cliente ILIKE $` + n + `)`
	}
	query += ` ORDER BY nombre`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Obra
	for rows.Next() {
		var o Obra
		if err := rows.Scan(&o.ID, &o.Nombre, &o.Cliente, &o.Estado); err != nil {
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
	err := r.pool.QueryRow(ctx, `SELECT id::text, nombre, COALESCE(cliente, ''), COALESCE(estado, '') FROM obra WHERE id = $1`, id).
		Scan(&o.ID, &o.Nombre, &o.Cliente, &o.Estado)
	if errors.Is(err, pgx.ErrNoRows) {
		return Obra{}, shared.ErrNotFound
	}
	return o, err
}

func (r *repository) Planos(ctx context.Context, obraID string) ([]Plano, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, COALESCE(nombre, ''), storage_path, created_at FROM plano WHERE obra_id = $1 ORDER BY created_at DESC`, obraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Plano
	for rows.Next() {
		var p Plano
		if err := rows.Scan(&p.ID, &p.Nombre, &p.StoragePath, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Service resolves plans and their links.
type Service struct {
	repo   Repository
	signer storage.Signer
	bucket string
	ttl    time.Duration
}

// NewService builds a Service. A nil signer lists plans without links.
func NewService(repo Repository, signer storage.Signer, bucket string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{repo: repo, signer: signer, bucket: bucket, ttl: ttl}
}

// Obras lists sites by name.
func (s *Service) Obras(ctx context.Context, search string) ([]Obra, error) {
	return s.repo.Obras(ctx, strings.TrimSpace(search))
}

// Planos returns the site and its plans. Unnamed plans take the last path
// segment of their object key.
func (s *Service) Planos(ctx context.Context, obraID string) (Obra, []Plano, error) {
	obra, err := s.repo.Obra(ctx, obraID)
	if err != nil {
		return Obra{}, nil, err
	}
	planos, err := s.repo.Planos(ctx, obraID)
	if err != nil {
		return Obra{}, nil, err
	}
	for i := range planos {
		if strings.TrimSpace(planos[i].Nombre) == "" {
			planos[i].Nombre = storage.BaseName(planos[i].StoragePath)
		}
	}
	if s.signer == nil || len(planos) == 0 {
		return obra, planos, nil
	}
	keys := make([]string, len(planos))
	for i, p := range planos {
		keys[i] = p.StoragePath
	}
	urls, err := storage.SignAll(ctx, s.signer, s.bucket, keys, s.ttl)
	if err != nil {
		return Obra{}, nil, err
	}
	for i := range planos {
		planos[i].URL = urls[i]
	}
	return obra, planos, nil
}
