// Package rbac gates every page of the panel by the role stored on the
// principal's profile. A static table maps each role to either every route or
// an ordered list of route prefixes; the same table drives both the request
// guard and the menu shown to the user.
package rbac

import (
	"strings"

	"golang.org/x/text/cases"
)

// Role is the label stored on a profile record.
type Role string

// Known roles. NoRole is the sentinel for an unresolved or failed lookup.
const (
	RoleSuperAdmin   Role = "superadmin"
	RoleAdmin        Role = "admin"
	RoleCumplimiento Role = "cumplimiento"
	RoleDeposito     Role = "deposito"
	RoleTecnico      Role = "tecnico"

	NoRole Role = ""
)

var folder = cases.Fold()

// NormalizeRole trims and case-folds a raw label read from storage.
func NormalizeRole(label string) Role {
	label = strings.TrimSpace(label)
	if label == "" {
		return NoRole
	}
	return Role(folder.String(label))
}

// AdminRoles are the roles whose profile lives in the administrative table.
func AdminRoles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleCumplimiento, RoleDeposito}
}

// IsAdministrative reports whether the role belongs to back-office staff.
func (r Role) IsAdministrative() bool {
	for _, candidate := range AdminRoles() {
		if r == candidate {
			return true
		}
	}
	return false
}

// Valid reports whether the role is one of the enumerated labels.
func (r Role) Valid() bool {
	return r == RoleTecnico || r.IsAdministrative()
}

func (r Role) String() string {
	if r == NoRole {
		return "none"
	}
	return string(r)
}

// SessionContext is the explicit view state the guard evaluates. Resolved is
// false until the role lookup for PrincipalID has completed.
type SessionContext struct {
	PrincipalID string
	Role        Role
	Resolved    bool
}
