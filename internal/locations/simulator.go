package locations

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

// ErrNoTecnicos is returned when there is nobody to simulate.
var ErrNoTecnicos = errors.New("locations: no technicians to simulate")

// Simulator moves up to len(Zones) technicians around their zone and brings
// them back to Base on the last step.
type Simulator struct {
	repo     Repository
	steps    int
	interval time.Duration
	rng      *rand.Rand
	logger   *slog.Logger
	now      func() time.Time
	wait     func(ctx context.Context, d time.Duration) error
}

// NewSimulator builds a Simulator. steps below 2 are raised to 2.
func NewSimulator(repo Repository, steps int, interval time.Duration, logger *slog.Logger) *Simulator {
	if steps < 2 {
		steps = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	seed := uint64(time.Now().UnixNano())
	return &Simulator{
		repo:     repo,
		steps:    steps,
		interval: interval,
		rng:      rand.New(rand.NewPCG(seed, seed>>1)),
		logger:   logger,
		now:      time.Now,
		wait:     sleepCtx,
	}
}

// Run performs the whole simulation, clearing previous positions of the
// selected technicians first. It returns the number of points written.
func (s *Simulator) Run(ctx context.Context) (int, error) {
	tecnicos, err := s.repo.Tecnicos(ctx, len(Zones))
	if err != nil {
		return 0, err
	}
	if len(tecnicos) == 0 {
		return 0, ErrNoTecnicos
	}
	ids := make([]string, len(tecnicos))
	for i, t := range tecnicos {
		ids[i] = t.ID
	}
	if err := s.repo.Reset(ctx, ids); err != nil {
		return 0, err
	}

	written := 0
	for step := 1; step <= s.steps; step++ {
		if step > 1 {
			if err := s.wait(ctx, s.interval); err != nil {
				return written, err
			}
		}
		at := s.now().UTC()
		points := make([]Point, len(tecnicos))
		for i, t := range tecnicos {
			p := StepPoint(step, s.steps, Zones[i], s.rng)
			p.TecnicoID = t.ID
			p.TomadoEn = at
			points[i] = p
		}
		if err := s.repo.Insert(ctx, points); err != nil {
			return written, err
		}
		written += len(points)
		s.logger.Debug("tracking step", slog.Int("step", step), slog.Int("of", s.steps))
	}
	return written, nil
}

// StepPoint computes the position for step (1-based) out of steps. Early
// steps wander within the zone, the one before last stays close to its
// center and the last one is Base with the route closed.
func StepPoint(step, steps int, zone Zone, rng *rand.Rand) Point {
	p := Point{RutaActiva: true, Velocidad: float64(rng.IntN(41) + 10)}
	switch {
	case step < steps-1:
		p.Lat = zone.Lat + offset(rng, 0.003)
		p.Lng = zone.Lng + offset(rng, 0.003)
	case step == steps-1:
		p.Lat = zone.Lat + offset(rng, 0.001)
		p.Lng = zone.Lng + offset(rng, 0.001)
	default:
		p.Lat, p.Lng = Base.Lat, Base.Lng
		p.RutaActiva = false
	}
	return p
}

// offset returns a value in [-radius, radius).
func offset(rng *rand.Rand, radius float64) float64 {
	return (rng.Float64() - 0.5) * radius * 2
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
