package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paths(entries []NavEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestFilterVisible(t *testing.T) {
	filter := NewFilter(NewGuard(DefaultTable(), nil, ""), DefaultNav())

	assert.Equal(t, paths(DefaultNav()), paths(filter.Visible(RoleSuperAdmin)))
	assert.Equal(t, []string{"/home", "/obras", "/materiales", "/consumo", "/perfil"}, paths(filter.Visible(RoleDeposito)))
	assert.Equal(t, []string{"/home", "/perfil"}, paths(filter.Visible(RoleTecnico)))
	assert.NotContains(t, paths(filter.Visible(RoleAdmin)), "/admins")
}

func TestFilterHidesEverythingWithoutRole(t *testing.T) {
	filter := NewFilter(NewGuard(DefaultTable(), nil, ""), DefaultNav())

	visible := filter.Visible(NoRole)
	require.NotNil(t, visible)
	assert.Empty(t, visible)
	assert.Empty(t, filter.Visible("desconocido"))
}

func TestFilterAgreesWithGuard(t *testing.T) {
	for _, match := range []Matcher{PrefixMatch, SubstringMatch} {
		guard := NewGuard(DefaultTable(), match, "")
		filter := NewFilter(guard, DefaultNav())
		for _, r := range DefaultTable().Roles() {
			visible := map[string]bool{}
			for _, e := range filter.Visible(r) {
				visible[e.Path] = true
			}
			for _, e := range DefaultNav() {
				allowed := guard.Check(resolved(r), e.Path).Decision == Allow
				assert.Equal(t, allowed, visible[e.Path], "%s %s", r, e.Path)
			}
		}
	}
}

func TestFilterKeepsMasterOrder(t *testing.T) {
	entries := []NavEntry{{Path: "/perfil", Label: "Perfil"}, {Path: "/home", Label: "Inicio"}}
	filter := NewFilter(NewGuard(DefaultTable(), nil, ""), entries)
	entries[0].Path = "/admins"

	assert.Equal(t, []string{"/perfil", "/home"}, paths(filter.Visible(RoleTecnico)))
}
