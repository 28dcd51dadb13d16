package consumption

import "time"

// Observacion is stored on rows loaded through the panel.
const Observacion = "Carga manual por administrador"

// Obra is a row of the sites overview.
type Obra struct {
	ID         string
	NumeroObra string
	Nombre     string
	Cliente    string
	Estado     string
	CreatedAt  time.Time
}

// Material is a catalog entry with the quantity planned for one site.
type Material struct {
	ID                  string
	Codigo              string
	Descripcion         string
	Unidad              string
	CantidadPlanificada float64
	Consumido           float64
}

// Tecnico is a technician that may be charged with consumption.
type Tecnico struct {
	ID       string
	Nombre   string
	Apellido string
}

// FullName joins name parts.
func (t Tecnico) FullName() string {
	if t.Apellido == "" {
		return t.Nombre
	}
	return t.Nombre + " " + t.Apellido
}

// Row is one consumption record.
type Row struct {
	ObraID      string
	MaterialID  string
	TecnicoID   string
	Cantidad    float64
	TomadoEn    time.Time
	Observacion string
}

// Entry is a stored consumption row joined with names for display.
type Entry struct {
	Row
	Material string
	Tecnico  string
}

// Sheet is everything the register page needs for one site.
type Sheet struct {
	Obra      Obra
	Materials []Material
	Tecnicos  []Tecnico
	History   []Entry
}

// Registration is a batch loaded by an administrator for one technician.
type Registration struct {
	ObraID     string
	TecnicoID  string
	Cantidades map[string]float64
}
