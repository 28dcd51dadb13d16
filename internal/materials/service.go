package materials

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fiocam/panel/internal/shared"
)

// Service implements catalog and plan rules.
type Service struct {
	repo     Repository
	audit    shared.AuditRecorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds a Service.
func NewService(repo Repository, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, validate: validator.New()}
}

// List returns the catalog ordered by codigo.
func (s *Service) List(ctx context.Context, search string) ([]Material, error) {
	return s.repo.List(ctx, strings.TrimSpace(search))
}

// Upsert creates a material or updates the one sharing its codigo.
func (s *Service) Upsert(ctx context.Context, actorID string, in MaterialInput) (Material, error) {
	in = normalize(in)
	if err := s.check(in); err != nil {
		return Material{}, err
	}
	m, err := s.repo.Upsert(ctx, in)
	if err != nil {
		return Material{}, err
	}
	s.record(ctx, actorID, "material.upsert", m.ID)
	return m, nil
}

// Update edits a material.
func (s *Service) Update(ctx context.Context, actorID, id string, in MaterialInput) error {
	in = normalize(in)
	if err := s.check(in); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, in); err != nil {
		return err
	}
	s.record(ctx, actorID, "material.update", id)
	return nil
}

// Delete removes a material.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "material.delete", id)
	return nil
}

// Plan returns the whole catalog with the quantities planned for obraID.
func (s *Service) Plan(ctx context.Context, obraID string) (SitePlan, error) {
	nombre, err := s.repo.ObraNombre(ctx, obraID)
	if err != nil {
		return SitePlan{}, err
	}
	catalog, err := s.repo.List(ctx, "")
	if err != nil {
		return SitePlan{}, err
	}
	planned, err := s.repo.Planned(ctx, obraID)
	if err != nil {
		return SitePlan{}, err
	}
	plan := SitePlan{ObraID: obraID, ObraNombre: nombre, Lines: make([]PlanLine, 0, len(catalog))}
	for _, m := range catalog {
		plan.Lines = append(plan.Lines, PlanLine{Material: m, CantidadPlanificada: planned[m.ID]})
	}
	return plan, nil
}

// SavePlan replaces the site plan. Zero quantities are dropped.
func (s *Service) SavePlan(ctx context.Context, actorID, obraID string, quantities map[string]float64) error {
	if _, err := s.repo.ObraNombre(ctx, obraID); err != nil {
		return err
	}
	lines := make(map[string]float64, len(quantities))
	for id, qty := range quantities {
		if qty < 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
			return &shared.ValidationError{Field: "cantidad", Message: "Las cantidades deben ser números no negativos"}
		}
		if qty > 0 && strings.TrimSpace(id) != "" {
			lines[id] = qty
		}
	}
	if err := s.repo.ReplacePlan(ctx, obraID, lines); err != nil {
		return err
	}
	s.record(ctx, actorID, "obra.materiales", obraID)
	return nil
}

func (s *Service) check(in MaterialInput) error {
	if err := s.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			if fe.Tag() == "required" {
				return &shared.ValidationError{Field: strings.ToLower(fe.Field()), Message: "Código y descripción son obligatorios"}
			}
			return &shared.ValidationError{Field: strings.ToLower(fe.Field()), Message: "Texto demasiado largo"}
		}
		return err
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID, action, id string) {
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "material", EntityID: id}); err != nil {
		s.logger.Warn("audit", slog.String("action", action), slog.Any("error", err))
	}
}

func normalize(in MaterialInput) MaterialInput {
	in.Codigo = strings.ToUpper(strings.TrimSpace(in.Codigo))
	in.Descripcion = strings.TrimSpace(in.Descripcion)
	in.Unidad = strings.TrimSpace(in.Unidad)
	in.Abreviacion = strings.TrimSpace(in.Abreviacion)
	return in
}
