// Package sites manages obras (job sites) and their technician assignment.
package sites

import "time"

// Estados lists the accepted site states in workflow order.
var Estados = []string{"planificada", "en_progreso", "finalizada"}

// Obra is a job site.
type Obra struct {
	ID         string
	NumeroObra string
	Nombre     string
	Cliente    string
	Direccion  string
	Estado     string
	CreatedAt  time.Time
	Tecnicos   []Tecnico
}

// Tecnico is a technician that can be assigned to sites.
type Tecnico struct {
	ID       string `json:"id"`
	Nombre   string `json:"nombre"`
	Apellido string `json:"apellido"`
}

// FullName joins first and last name.
func (t Tecnico) FullName() string {
	if t.Apellido == "" {
		return t.Nombre
	}
	return t.Nombre + " " + t.Apellido
}

// ObraInput is the create/update form.
type ObraInput struct {
	NumeroObra string `validate:"max=40"`
	Nombre     string `validate:"required,max=160"`
	Cliente    string `validate:"max=160"`
	Direccion  string `validate:"max=240"`
	Estado     string `validate:"omitempty,oneof=planificada en_progreso finalizada"`
}

// PlannedMaterial is a material row of the site plan.
type PlannedMaterial struct {
	MaterialID          string
	Codigo              string
	Descripcion         string
	Unidad              string
	CantidadPlanificada float64
}

// Document is a stored file (plan or photo) attached to a site.
type Document struct {
	ID          string
	Nombre      string
	Categoria   string
	StoragePath string
	URL         string
}

// Detail is everything the site page shows.
type Detail struct {
	Obra       Obra
	Materiales []PlannedMaterial
	Planos     []Document
	Fotos      []Document
}
