package photos

import (
	"time"

	"github.com/fiocam/panel/internal/platform/storage"
)

// Capture is the minimum needed to bucket a photo by day.
type Capture struct {
	ObraID   string
	TomadoEn time.Time
}

// Obra identifies a site in the summary.
type Obra struct {
	ID         string
	NumeroObra string
	Nombre     string
}

// Summary counts the photos of one site.
type Summary struct {
	Obra
	Total  int
	Hoy    int
	Ayer   int
	Ultima time.Time
}

// Foto is a photo taken by a technician on a site.
type Foto struct {
	ID          string
	Nombre      string
	Categoria   string
	StoragePath string
	TomadoEn    time.Time
	Lat         *float64
	Lon         *float64
	TecnicoID   string
	Tecnico     string
	URL         string
}

// FileName is the name shown and used inside exports.
func (f Foto) FileName() string {
	if f.Nombre != "" {
		return f.Nombre
	}
	return storage.BaseName(f.StoragePath)
}

// Gallery is the photo list of one site.
type Gallery struct {
	Obra  Obra
	Fotos []Foto
}
