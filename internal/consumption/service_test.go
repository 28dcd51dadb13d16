package consumption

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiocam/panel/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	planned   []Material
	inserted  []Row
	insertErr error
}

func (m *mockRepository) Obras(ctx context.Context, search string) ([]Obra, error) {
	return []Obra{{ID: "o-1", NumeroObra: "001", Nombre: "Torre Norte"}}, nil
}

func (m *mockRepository) Obra(ctx context.Context, id string) (Obra, error) {
	if id != "o-1" {
		return Obra{}, shared.ErrNotFound
	}
	return Obra{ID: "o-1", Nombre: "Torre Norte"}, nil
}

func (m *mockRepository) Planned(ctx context.Context, obraID string) ([]Material, error) {
	return m.planned, nil
}

func (m *mockRepository) Tecnicos(ctx context.Context) ([]Tecnico, error) {
	return []Tecnico{{ID: "t-1", Nombre: "Ana", Apellido: "Paz"}}, nil
}

func (m *mockRepository) History(ctx context.Context, obraID string, limit int) ([]Entry, error) {
	return nil, nil
}

func (m *mockRepository) Insert(ctx context.Context, rows []Row) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, rows...)
	return nil
}

// ============================================================================
// TESTS
// ============================================================================

func newTestService() (*Service, *mockRepository) {
	repo := &mockRepository{planned: []Material{
		{ID: "m-1", Codigo: "CAB-01", CantidadPlanificada: 100},
		{ID: "m-2", Codigo: "TUB-20", CantidadPlanificada: 10},
	}}
	svc := NewService(repo, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC) }
	return svc, repo
}

func TestRegisterStoresPositiveQuantities(t *testing.T) {
	svc, repo := newTestService()
	n, err := svc.Register(context.Background(), "actor", Registration{
		ObraID:     "o-1",
		TecnicoID:  "t-1",
		Cantidades: map[string]float64{"m-2": 2, "m-1": 12.5, "m-3": 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, repo.inserted, 2)
	assert.Equal(t, "m-1", repo.inserted[0].MaterialID)
	assert.Equal(t, 12.5, repo.inserted[0].Cantidad)
	assert.Equal(t, Observacion, repo.inserted[1].Observacion)
	assert.Equal(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC), repo.inserted[1].TomadoEn)
}

func TestRegisterRejectsUnplannedMaterial(t *testing.T) {
	svc, repo := newTestService()
	_, err := svc.Register(context.Background(), "actor", Registration{
		ObraID:     "o-1",
		TecnicoID:  "t-1",
		Cantidades: map[string]float64{"m-1": 1, "m-9": 3},
	})
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "m-9")
	assert.Empty(t, repo.inserted)
}

func TestRegisterValidation(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	cases := map[string]Registration{
		"no tecnico": {ObraID: "o-1", Cantidades: map[string]float64{"m-1": 1}},
		"negative":   {ObraID: "o-1", TecnicoID: "t-1", Cantidades: map[string]float64{"m-1": -2}},
		"nan":        {ObraID: "o-1", TecnicoID: "t-1", Cantidades: map[string]float64{"m-1": math.NaN()}},
		"infinite":   {ObraID: "o-1", TecnicoID: "t-1", Cantidades: map[string]float64{"m-1": math.Inf(1)}},
		"all zero":   {ObraID: "o-1", TecnicoID: "t-1", Cantidades: map[string]float64{"m-1": 0}},
		"empty":      {ObraID: "o-1", TecnicoID: "t-1"},
	}
	for name, reg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(ctx, "actor", reg)
			var vErr *shared.ValidationError
			assert.ErrorAs(t, err, &vErr)
			assert.Empty(t, repo.inserted)
		})
	}
}

func TestRegisterPropagatesStoreFailure(t *testing.T) {
	svc, repo := newTestService()
	repo.insertErr = errors.New("boom")
	_, err := svc.Register(context.Background(), "actor", Registration{
		ObraID: "o-1", TecnicoID: "t-1", Cantidades: map[string]float64{"m-1": 1},
	})
	assert.EqualError(t, err, "boom")
}

func TestSheet(t *testing.T) {
	svc, _ := newTestService()
	sheet, err := svc.Sheet(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, "Torre Norte", sheet.Obra.Nombre)
	assert.Len(t, sheet.Materials, 2)
	assert.Equal(t, "Ana Paz", sheet.Tecnicos[0].FullName())

	_, err = svc.Sheet(context.Background(), "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
