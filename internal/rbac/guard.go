package rbac

// DefaultDeniedPath is where the guard sends principals lacking access.
const DefaultDeniedPath = "/denegado"

// Decision is the outcome of a guard check.
type Decision int

const (
	// Pending means the role is not known yet and no decision is taken.
	Pending Decision = iota
	// Allow lets the navigation proceed.
	Allow
	// Redirect sends the principal to the denial page.
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "pending"
	}
}

// Verdict pairs a decision with the redirect target when there is one.
type Verdict struct {
	Decision Decision
	Location string
}

// Guard evaluates route requests against the permission table.
type Guard struct {
	table      Table
	match      Matcher
	deniedPath string
}

// NewGuard builds a guard. A nil matcher selects PrefixMatch and an empty
// denied path selects DefaultDeniedPath.
func NewGuard(table Table, match Matcher, deniedPath string) *Guard {
	if match == nil {
		match = PrefixMatch
	}
	if deniedPath == "" {
		deniedPath = DefaultDeniedPath
	}
	return &Guard{table: table, match: match, deniedPath: deniedPath}
}

// DeniedPath returns the redirect target.
func (g *Guard) DeniedPath() string {
	return g.deniedPath
}

// Check decides path for the given session. It holds no state, so repeated
// calls with the same input always agree.
func (g *Guard) Check(sc SessionContext, path string) Verdict {
	if !sc.Resolved {
		return Verdict{Decision: Pending}
	}
	if path == g.deniedPath {
		return Verdict{Decision: Allow}
	}
	entry, ok := g.table.Entry(sc.Role)
	if !ok || entry.Empty() {
		return g.deny()
	}
	if entry.permits(path, g.match) {
		return Verdict{Decision: Allow}
	}
	return g.deny()
}

func (g *Guard) deny() Verdict {
	return Verdict{Decision: Redirect, Location: g.deniedPath}
}

// Navigator is the per-session state machine driven by the routing layer:
// Begin enters PENDING, Resolve moves to RESOLVED, Navigate evaluates a path
// in whichever state is current. A Navigator has a single owner and is not
// safe for concurrent use.
type Navigator struct {
	guard   *Guard
	session SessionContext
}

// Begin starts a navigator for principalID in the PENDING state.
func (g *Guard) Begin(principalID string) *Navigator {
	return &Navigator{guard: g, session: SessionContext{PrincipalID: principalID}}
}

// Resolve records the outcome of a role lookup. Later calls replace earlier
// ones, so the last lookup to complete wins. NoRole is a resolved outcome and
// denies everything but the denial page.
func (n *Navigator) Resolve(role Role) {
	n.session.Role = role
	n.session.Resolved = true
}

// Session returns the current view state.
func (n *Navigator) Session() SessionContext {
	return n.session
}

// Navigate evaluates a navigation event against the current state.
func (n *Navigator) Navigate(path string) Verdict {
	return n.guard.Check(n.session, path)
}
