package locations

import "time"

// Zone is a named coordinate.
type Zone struct {
	Nombre string  `json:"nombre"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

// Base is the depot every simulated route returns to.
var Base = Zone{Nombre: "Depósito Castelar", Lat: -34.657221, Lng: -58.662317}

// Zones are the work areas handed to simulated technicians in order.
var Zones = []Zone{
	{Nombre: "Palermo", Lat: -34.583, Lng: -58.425},
	{Nombre: "Caballito", Lat: -34.618, Lng: -58.442},
	{Nombre: "Flores", Lat: -34.630, Lng: -58.468},
}

// Point is a position reported by a technician.
type Point struct {
	TecnicoID  string    `json:"tecnico_id"`
	Tecnico    string    `json:"tecnico"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Velocidad  float64   `json:"velocidad"`
	RutaActiva bool      `json:"ruta_activa"`
	TomadoEn   time.Time `json:"tomado_en"`
}

// Trail is the ordered path of one technician.
type Trail struct {
	TecnicoID string  `json:"tecnico_id"`
	Tecnico   string  `json:"tecnico"`
	Points    []Point `json:"points"`
}

// Snapshot is what the map page shows.
type Snapshot struct {
	Base   Zone    `json:"base"`
	Latest []Point `json:"latest"`
	Trails []Trail `json:"trails"`
}

// Tecnico is a technician that can be tracked.
type Tecnico struct {
	ID       string
	Nombre   string
	Apellido string
}
