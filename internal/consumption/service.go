package consumption

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fiocam/panel/internal/shared"
)

// historyLimit bounds the rows shown under the register form.
const historyLimit = 50

// Service implements consumption rules.
type Service struct {
	repo   Repository
	audit  shared.AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a Service.
func NewService(repo Repository, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// Obras lists sites ordered by numero_obra.
func (s *Service) Obras(ctx context.Context, search string) ([]Obra, error) {
	return s.repo.Obras(ctx, strings.TrimSpace(search))
}

// Sheet loads the register page for a site.
func (s *Service) Sheet(ctx context.Context, obraID string) (Sheet, error) {
	obra, err := s.repo.Obra(ctx, obraID)
	if err != nil {
		return Sheet{}, err
	}
	materials, err := s.repo.Planned(ctx, obraID)
	if err != nil {
		return Sheet{}, err
	}
	tecnicos, err := s.repo.Tecnicos(ctx)
	if err != nil {
		return Sheet{}, err
	}
	history, err := s.repo.History(ctx, obraID, historyLimit)
	if err != nil {
		return Sheet{}, err
	}
	return Sheet{Obra: obra, Materials: materials, Tecnicos: tecnicos, History: history}, nil
}

// Register stores one row per positive quantity. Every material must be
// planned on the site; otherwise nothing is stored.
func (s *Service) Register(ctx context.Context, actorID string, reg Registration) (int, error) {
	if strings.TrimSpace(reg.TecnicoID) == "" {
		return 0, &shared.ValidationError{Field: "tecnico", Message: "Seleccione un técnico"}
	}
	planned, err := s.repo.Planned(ctx, reg.ObraID)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]Material, len(planned))
	for _, m := range planned {
		byID[m.ID] = m
	}

	now := s.now().UTC()
	var rows []Row
	var missing []string
	for materialID, qty := range reg.Cantidades {
		if qty < 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
			return 0, &shared.ValidationError{Field: "cantidad", Message: "Las cantidades deben ser positivas"}
		}
		if qty == 0 {
			continue
		}
		if _, ok := byID[materialID]; !ok {
			missing = append(missing, materialID)
			continue
		}
		rows = append(rows, Row{
			ObraID:      reg.ObraID,
			MaterialID:  materialID,
			TecnicoID:   reg.TecnicoID,
			Cantidad:    qty,
			TomadoEn:    now,
			Observacion: Observacion,
		})
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return 0, &shared.ValidationError{
			Field:   "material",
			Message: "Materiales no asignados a esta obra: " + strings.Join(missing, ", "),
		}
	}
	if len(rows) == 0 {
		return 0, &shared.ValidationError{Field: "cantidad", Message: "Ingrese al menos un consumo válido"}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].MaterialID < rows[j].MaterialID })

	if err := s.repo.Insert(ctx, rows); err != nil {
		return 0, err
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "consumo.register",
		Entity:   "obra",
		EntityID: reg.ObraID,
		Meta:     map[string]any{"tecnico_id": reg.TecnicoID, "rows": len(rows)},
	}); err != nil {
		s.logger.Warn("audit", slog.String("action", "consumo.register"), slog.Any("error", err))
	}
	return len(rows), nil
}
