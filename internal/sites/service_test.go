package sites

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiocam/panel/internal/shared"
)

type mockRepository struct {
	obras      map[string]Obra
	asignados  map[string][]string
	tecnicos   map[string]Tecnico
	materiales []PlannedMaterial
	planos     []Document
	fotos      []Document
	created    []ObraInput
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		obras:     map[string]Obra{"o-1": {ID: "o-1", Nombre: "Torre Norte"}},
		asignados: map[string][]string{},
		tecnicos: map[string]Tecnico{
			"t-1": {ID: "t-1", Nombre: "Juan", Apellido: "Paz"},
			"t-2": {ID: "t-2", Nombre: "Eva", Apellido: "Ruiz"},
		},
	}
}

func (m *mockRepository) List(ctx context.Context, search string) ([]Obra, error) {
	var out []Obra
	for _, o := range m.obras {
		out = append(out, o)
	}
	return out, nil
}

func (m *mockRepository) Get(ctx context.Context, id string) (Obra, error) {
	o, ok := m.obras[id]
	if !ok {
		return Obra{}, shared.ErrNotFound
	}
	return o, nil
}

func (m *mockRepository) Create(ctx context.Context, in ObraInput) (Obra, error) {
	m.created = append(m.created, in)
	o := Obra{ID: "o-new", Nombre: in.Nombre, Estado: in.Estado}
	m.obras[o.ID] = o
	return o, nil
}

func (m *mockRepository) Update(ctx context.Context, id string, in ObraInput) error {
	o, ok := m.obras[id]
	if !ok {
		return shared.ErrNotFound
	}
	o.Nombre = in.Nombre
	m.obras[id] = o
	return nil
}

func (m *mockRepository) Tecnicos(ctx context.Context, obraIDs []string) (map[string][]Tecnico, error) {
	out := map[string][]Tecnico{}
	for _, id := range obraIDs {
		for _, tid := range m.asignados[id] {
			out[id] = append(out[id], m.tecnicos[tid])
		}
	}
	return out, nil
}

func (m *mockRepository) SearchTecnicos(ctx context.Context, search string) ([]Tecnico, error) {
	return []Tecnico{m.tecnicos["t-1"]}, nil
}

func (m *mockRepository) ReplaceTecnicos(ctx context.Context, obraID string, ids []string) error {
	m.asignados[obraID] = ids
	return nil
}

func (m *mockRepository) AssignTecnico(ctx context.Context, obraID, tecnicoID string) error {
	for _, id := range m.asignados[obraID] {
		if id == tecnicoID {
			return shared.ErrDuplicate
		}
	}
	m.asignados[obraID] = append(m.asignados[obraID], tecnicoID)
	return nil
}

func (m *mockRepository) UnassignTecnico(ctx context.Context, obraID, tecnicoID string) error {
	ids := m.asignados[obraID]
	for i, id := range ids {
		if id == tecnicoID {
			m.asignados[obraID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *mockRepository) Materiales(ctx context.Context, obraID string) ([]PlannedMaterial, error) {
	return m.materiales, nil
}

func (m *mockRepository) Planos(ctx context.Context, obraID string) ([]Document, error) {
	out := make([]Document, len(m.planos))
	copy(out, m.planos)
	return out, nil
}

func (m *mockRepository) Fotos(ctx context.Context, obraID string) ([]Document, error) {
	out := make([]Document, len(m.fotos))
	copy(out, m.fotos)
	return out, nil
}

type recordingSigner struct {
	mu   sync.Mutex
	ttls map[string]time.Duration
}

func (s *recordingSigner) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if key == "roto.pdf" {
		return "", errors.New("no such key")
	}
	s.mu.Lock()
	s.ttls[bucket] = ttl
	s.mu.Unlock()
	return "https://cdn/" + bucket + "/" + key, nil
}

func TestCreateDefaultsEstadoAndValidates(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, Buckets{}, nil, nil)
	ctx := context.Background()

	o, err := svc.Create(ctx, "actor", ObraInput{Nombre: "  Edificio Sur "})
	require.NoError(t, err)
	assert.Equal(t, "Edificio Sur", o.Nombre)
	assert.Equal(t, "planificada", o.Estado)

	_, err = svc.Create(ctx, "actor", ObraInput{Nombre: " "})
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "nombre", vErr.Field)

	_, err = svc.Create(ctx, "actor", ObraInput{Nombre: "X", Estado: "abandonada"})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Estado inválido", vErr.Message)
	assert.Len(t, repo.created, 1)
}

func TestAssignTecnicoDuplicateIsFriendly(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, Buckets{}, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.AssignTecnico(ctx, "actor", "o-1", "t-1"))
	err := svc.AssignTecnico(ctx, "actor", "o-1", "t-1")
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Este técnico ya está asignado a esta obra", vErr.Message)

	assert.ErrorIs(t, svc.AssignTecnico(ctx, "actor", "nope", "t-1"), shared.ErrNotFound)
	require.NoError(t, svc.UnassignTecnico(ctx, "actor", "o-1", "t-1"))
	assert.ErrorIs(t, svc.UnassignTecnico(ctx, "actor", "o-1", "t-1"), shared.ErrNotFound)
}

func TestReplaceTecnicosDedupes(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, Buckets{}, nil, nil)

	require.NoError(t, svc.ReplaceTecnicos(context.Background(), "actor", "o-1", []string{"t-2", "t-1", "t-2", " "}))
	assert.Equal(t, []string{"t-2", "t-1"}, repo.asignados["o-1"])

	obras, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, obras, 1)
	assert.Len(t, obras[0].Tecnicos, 2)
}

func TestDetailSignsDocuments(t *testing.T) {
	repo := newMockRepository()
	repo.planos = []Document{{ID: "p1", StoragePath: "o-1/planta.pdf"}, {ID: "p2", Nombre: "Corte", StoragePath: "roto.pdf"}}
	repo.fotos = []Document{{ID: "f1", StoragePath: "o-1/a.jpg"}}
	signer := &recordingSigner{ttls: map[string]time.Duration{}}
	svc := NewService(repo, signer, Buckets{Photos: "fotos", Plans: "planos", PhotoTTL: time.Hour, PlanTTL: 10 * time.Minute}, nil, nil)

	d, err := svc.Detail(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/planos/o-1/planta.pdf", d.Planos[0].URL)
	assert.Equal(t, "planta.pdf", d.Planos[0].Nombre)
	assert.Empty(t, d.Planos[1].URL)
	assert.Equal(t, "Corte", d.Planos[1].Nombre)
	assert.Equal(t, "https://cdn/fotos/o-1/a.jpg", d.Fotos[0].URL)
	assert.Equal(t, 10*time.Minute, signer.ttls["planos"])
	assert.Equal(t, time.Hour, signer.ttls["fotos"])

	_, err = svc.Detail(context.Background(), "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSearchTecnicosEmptyQuery(t *testing.T) {
	svc := NewService(newMockRepository(), nil, Buckets{}, nil, nil)
	got, err := svc.SearchTecnicos(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, got)
}
