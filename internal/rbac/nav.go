package rbac

// NavEntry is a menu link.
type NavEntry struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

// DefaultNav is the master menu in display order.
func DefaultNav() []NavEntry {
	return []NavEntry{
		{Path: "/home", Label: "Inicio"},
		{Path: "/obras", Label: "Obras"},
		{Path: "/materiales", Label: "Materiales"},
		{Path: "/planos", Label: "Planos"},
		{Path: "/fotos", Label: "Fotos"},
		{Path: "/consumo", Label: "Consumo"},
		{Path: "/ubicaciones", Label: "Ubicaciones"},
		{Path: "/tecnicos", Label: "Técnicos"},
		{Path: "/admins", Label: "Admins"},
		{Path: "/roles", Label: "Roles"},
		{Path: "/perfil", Label: "Perfil"},
	}
}

// Filter hides menu links the guard would refuse.
type Filter struct {
	guard   *Guard
	entries []NavEntry
}

// NewFilter builds a filter over entries, evaluated with guard so that the
// menu and the guard can never disagree.
func NewFilter(guard *Guard, entries []NavEntry) *Filter {
	copied := make([]NavEntry, len(entries))
	copy(copied, entries)
	return &Filter{guard: guard, entries: copied}
}

// Visible returns the links role may follow, in master order. NoRole sees
// nothing.
func (f *Filter) Visible(role Role) []NavEntry {
	visible := []NavEntry{}
	if role == NoRole {
		return visible
	}
	sc := SessionContext{Role: role, Resolved: true}
	for _, entry := range f.entries {
		if f.guard.Check(sc, entry.Path).Decision == Allow {
			visible = append(visible, entry)
		}
	}
	return visible
}
