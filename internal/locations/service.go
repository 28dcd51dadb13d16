package locations

import (
	"context"
	"time"
)

// trailWindow bounds how far back the map draws routes.
const trailWindow = 24 * time.Hour

// DefaultRetention is how long positions are kept before Prune drops them.
const DefaultRetention = 7 * 24 * time.Hour

// Service reads technician positions.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Latest returns the newest point per technician.
func (s *Service) Latest(ctx context.Context) ([]Point, error) {
	points, err := s.repo.Latest(ctx)
	if points == nil && err == nil {
		points = []Point{}
	}
	return points, err
}

// Snapshot returns latest positions plus each technician's recent trail.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	latest, err := s.Latest(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	points, err := s.repo.Since(ctx, s.now().Add(-trailWindow))
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Base: Base, Latest: latest, Trails: GroupTrails(points)}, nil
}

// Prune removes positions older than retention. Non-positive retention uses
// DefaultRetention; it never goes below the trail window.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if retention < trailWindow {
		retention = trailWindow
	}
	return s.repo.Prune(ctx, s.now().Add(-retention))
}

// GroupTrails splits points by technician keeping their order. Trails come
// out in order of first appearance.
func GroupTrails(points []Point) []Trail {
	index := make(map[string]int)
	trails := []Trail{}
	for _, p := range points {
		i, ok := index[p.TecnicoID]
		if !ok {
			i = len(trails)
			index[p.TecnicoID] = i
			trails = append(trails, Trail{TecnicoID: p.TecnicoID, Tecnico: p.Tecnico})
		}
		trails[i].Points = append(trails[i].Points, p)
	}
	return trails
}
