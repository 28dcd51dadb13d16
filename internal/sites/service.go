package sites

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fiocam/panel/internal/platform/storage"
	"github.com/fiocam/panel/internal/shared"
)

// Buckets names where site files live and how long their links last.
type Buckets struct {
	Photos   string
	Plans    string
	PhotoTTL time.Duration
	PlanTTL  time.Duration
}

// Service implements site rules.
type Service struct {
	repo     Repository
	signer   storage.Signer
	buckets  Buckets
	audit    shared.AuditRecorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds a Service. signer may be nil, in which case documents
// are listed without links.
func NewService(repo Repository, signer storage.Signer, buckets Buckets, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, signer: signer, buckets: buckets, audit: audit, logger: logger, validate: validator.New()}
}

// List returns sites newest first with their technicians.
func (s *Service) List(ctx context.Context, search string) ([]Obra, error) {
	obras, err := s.repo.List(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(obras))
	for i, o := range obras {
		ids[i] = o.ID
	}
	tecnicos, err := s.repo.Tecnicos(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range obras {
		obras[i].Tecnicos = tecnicos[obras[i].ID]
	}
	return obras, nil
}

// Create stores a new site.
func (s *Service) Create(ctx context.Context, actorID string, in ObraInput) (Obra, error) {
	in = normalize(in)
	if err := s.check(in); err != nil {
		return Obra{}, err
	}
	if in.Estado == "" {
		in.Estado = Estados[0]
	}
	o, err := s.repo.Create(ctx, in)
	if err != nil {
		return Obra{}, err
	}
	s.record(ctx, actorID, "obra.create", o.ID)
	return o, nil
}

// Update edits a site.
func (s *Service) Update(ctx context.Context, actorID, id string, in ObraInput) error {
	in = normalize(in)
	if err := s.check(in); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, in); err != nil {
		return err
	}
	s.record(ctx, actorID, "obra.update", id)
	return nil
}

// Detail loads the site page: plan, technicians, and signed plan and photo
// links.
func (s *Service) Detail(ctx context.Context, id string) (Detail, error) {
	obra, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	tecnicos, err := s.repo.Tecnicos(ctx, []string{id})
	if err != nil {
		return Detail{}, err
	}
	obra.Tecnicos = tecnicos[id]

	materiales, err := s.repo.Materiales(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	planos, err := s.repo.Planos(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	fotos, err := s.repo.Fotos(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if err := s.sign(ctx, s.buckets.Plans, s.buckets.PlanTTL, planos); err != nil {
		return Detail{}, err
	}
	if err := s.sign(ctx, s.buckets.Photos, s.buckets.PhotoTTL, fotos); err != nil {
		return Detail{}, err
	}
	for i := range planos {
		if planos[i].Nombre == "" {
			planos[i].Nombre = storage.BaseName(planos[i].StoragePath)
		}
	}
	return Detail{Obra: obra, Materiales: materiales, Planos: planos, Fotos: fotos}, nil
}

// SearchTecnicos finds technicians by name. An empty query yields nothing.
func (s *Service) SearchTecnicos(ctx context.Context, query string) ([]Tecnico, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Tecnico{}, nil
	}
	return s.repo.SearchTecnicos(ctx, query)
}

// ReplaceTecnicos sets the exact technician list of a site.
func (s *Service) ReplaceTecnicos(ctx context.Context, actorID, obraID string, tecnicoIDs []string) error {
	if _, err := s.repo.Get(ctx, obraID); err != nil {
		return err
	}
	if err := s.repo.ReplaceTecnicos(ctx, obraID, dedupe(tecnicoIDs)); err != nil {
		return err
	}
	s.record(ctx, actorID, "obra.tecnicos", obraID)
	return nil
}

// AssignTecnico adds one technician to a site.
func (s *Service) AssignTecnico(ctx context.Context, actorID, obraID, tecnicoID string) error {
	if strings.TrimSpace(tecnicoID) == "" {
		return &shared.ValidationError{Field: "tecnico", Message: "Seleccioná un técnico"}
	}
	if _, err := s.repo.Get(ctx, obraID); err != nil {
		return err
	}
	if err := s.repo.AssignTecnico(ctx, obraID, tecnicoID); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return &shared.ValidationError{Field: "tecnico", Message: "Este técnico ya está asignado a esta obra"}
		}
		return err
	}
	s.record(ctx, actorID, "obra.tecnico.asignar", obraID)
	return nil
}

// UnassignTecnico removes one technician from a site.
func (s *Service) UnassignTecnico(ctx context.Context, actorID, obraID, tecnicoID string) error {
	if err := s.repo.UnassignTecnico(ctx, obraID, tecnicoID); err != nil {
		return err
	}
	s.record(ctx, actorID, "obra.tecnico.quitar", obraID)
	return nil
}

func (s *Service) sign(ctx context.Context, bucket string, ttl time.Duration, docs []Document) error {
	if s.signer == nil || len(docs) == 0 {
		return nil
	}
	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.StoragePath
	}
	urls, err := storage.SignAll(ctx, s.signer, bucket, keys, ttl)
	if err != nil {
		return err
	}
	for i := range docs {
		docs[i].URL = urls[i]
	}
	return nil
}

func (s *Service) check(in ObraInput) error {
	if err := s.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			msg := "Valor inválido"
			switch fe.Tag() {
			case "required":
				msg = "El nombre de la obra es obligatorio"
			case "oneof":
				msg = "Estado inválido"
			case "max":
				msg = "Texto demasiado largo"
			}
			return &shared.ValidationError{Field: strings.ToLower(fe.Field()), Message: msg}
		}
		return err
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID, action, id string) {
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "obra", EntityID: id}); err != nil {
		s.logger.Warn("audit", slog.String("action", action), slog.Any("error", err))
	}
}

func normalize(in ObraInput) ObraInput {
	in.NumeroObra = strings.TrimSpace(in.NumeroObra)
	in.Nombre = strings.TrimSpace(in.Nombre)
	in.Cliente = strings.TrimSpace(in.Cliente)
	in.Direccion = strings.TrimSpace(in.Direccion)
	in.Estado = strings.TrimSpace(in.Estado)
	return in
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
