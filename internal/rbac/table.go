package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Matcher decides whether a requested path is covered by one allow-list prefix.
type Matcher func(path, prefix string) bool

var (
	// PrefixMatch permits paths starting with the prefix. "/obra" still covers
	// "/obraX": matching is on characters, not path segments.
	PrefixMatch Matcher = strings.HasPrefix
	// SubstringMatch permits paths containing the prefix anywhere. Kept for
	// deployments that relied on the older, more permissive behaviour.
	SubstringMatch Matcher = strings.Contains
)

// MatcherByName returns the strategy configured by name.
func MatcherByName(name string) (Matcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "prefix":
		return PrefixMatch, nil
	case "substring":
		return SubstringMatch, nil
	default:
		return nil, fmt.Errorf("rbac: unknown match strategy %q", name)
	}
}

// Entry is either unrestricted or an ordered allow-list of route prefixes.
type Entry struct {
	all      bool
	prefixes []string
}

// AllRoutes returns the unrestricted entry.
func AllRoutes() Entry {
	return Entry{all: true}
}

// Only returns an entry allowing the given prefixes. Blank prefixes are
// dropped so that an empty string can never grant every route.
func Only(prefixes ...string) Entry {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return Entry{prefixes: cleaned}
}

// Unrestricted reports whether the entry grants every route.
func (e Entry) Unrestricted() bool {
	return e.all
}

// Prefixes returns a copy of the allow-list.
func (e Entry) Prefixes() []string {
	out := make([]string, len(e.prefixes))
	copy(out, e.prefixes)
	return out
}

// Empty reports whether the entry grants nothing.
func (e Entry) Empty() bool {
	return !e.all && len(e.prefixes) == 0
}

func (e Entry) permits(path string, match Matcher) bool {
	if e.all {
		return true
	}
	for _, prefix := range e.prefixes {
		if match(path, prefix) {
			return true
		}
	}
	return false
}

// Table is the compiled role to entry mapping. It is never mutated after
// construction.
type Table struct {
	entries map[Role]Entry
}

// NewTable copies entries into a table, normalizing the role keys.
func NewTable(entries map[Role]Entry) Table {
	copied := make(map[Role]Entry, len(entries))
	for role, entry := range entries {
		role = NormalizeRole(string(role))
		if role == NoRole {
			continue
		}
		copied[role] = Entry{all: entry.all, prefixes: entry.Prefixes()}
	}
	return Table{entries: copied}
}

// DefaultTable is the canonical permission table of the panel.
func DefaultTable() Table {
	return NewTable(map[Role]Entry{
		RoleSuperAdmin: AllRoutes(),
		RoleAdmin: Only(
			"/home", "/obras", "/materiales", "/planos", "/fotos", "/galeria",
			"/consumo", "/ubicaciones", "/tecnicos", "/perfil",
		),
		RoleDeposito:     Only("/home", "/obras", "/materiales", "/consumo", "/perfil"),
		RoleCumplimiento: Only("/home", "/obras", "/planos", "/fotos", "/galeria", "/perfil"),
		RoleTecnico:      Only("/home", "/perfil"),
	})
}

// Entry returns the entry of role.
func (t Table) Entry(role Role) (Entry, bool) {
	entry, ok := t.entries[role]
	return entry, ok
}

// Roles lists the roles with an entry, sorted by name.
func (t Table) Roles() []Role {
	roles := make([]Role, 0, len(t.entries))
	for role := range t.entries {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Allows reports whether role may view path. Roles without an entry are
// denied every path.
func (t Table) Allows(role Role, path string, match Matcher) bool {
	if match == nil {
		match = PrefixMatch
	}
	entry, ok := t.entries[role]
	if !ok {
		return false
	}
	return entry.permits(path, match)
}
