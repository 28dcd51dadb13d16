// Package materials keeps the material catalog and the planned quantities
// per site.
package materials

// Material is a catalog entry.
type Material struct {
	ID          string
	Codigo      string
	Descripcion string
	Unidad      string
	Abreviacion string
	Activo      bool
}

// MaterialInput is the create/update form.
type MaterialInput struct {
	Codigo      string `validate:"required,max=40"`
	Descripcion string `validate:"required,max=240"`
	Unidad      string `validate:"max=20"`
	Abreviacion string `validate:"max=20"`
	Activo      bool
}

// PlanLine is one material of the catalog with the quantity planned for a
// site, zero when not planned.
type PlanLine struct {
	Material            Material
	CantidadPlanificada float64
}

// SitePlan is the assignment page of a site.
type SitePlan struct {
	ObraID     string
	ObraNombre string
	Lines      []PlanLine
}
