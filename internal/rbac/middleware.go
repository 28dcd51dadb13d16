package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/fiocam/panel/internal/shared"
)

// RoleResolver is satisfied by *Resolver.
type RoleResolver interface {
	Resolve(ctx context.Context, principalID string) Role
}

// DecisionRecorder observes guard outcomes.
type DecisionRecorder interface {
	ObserveAccess(role, decision string)
}

type accessContextKey struct{}

// ContextWithAccess stores the evaluated session context.
func ContextWithAccess(ctx context.Context, sc SessionContext) context.Context {
	return context.WithValue(ctx, accessContextKey{}, sc)
}

// AccessFromContext returns the session context stored by the gate.
func AccessFromContext(ctx context.Context) (SessionContext, bool) {
	sc, ok := ctx.Value(accessContextKey{}).(SessionContext)
	return sc, ok
}

// Gate is the HTTP interceptor in front of every back-office page.
type Gate struct {
	Resolver  RoleResolver
	Guard     *Guard
	Nav       *Filter
	LoginPath string
	Logger    *slog.Logger
	Recorder  DecisionRecorder
}

// Middleware authenticates the request, resolves the role, and either serves
// the page or silently redirects to the denial page.
func (g Gate) Middleware(next http.Handler) http.Handler {
	loginPath := g.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.Principal() == "" {
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
			return
		}

		sc := SessionContext{PrincipalID: sess.Principal()}
		sc.Role = g.Resolver.Resolve(r.Context(), sc.PrincipalID)
		sc.Resolved = true

		verdict := g.Guard.Check(sc, r.URL.Path)
		if g.Recorder != nil {
			g.Recorder.ObserveAccess(sc.Role.String(), verdict.Decision.String())
		}
		if verdict.Decision != Allow {
			if g.Logger != nil {
				g.Logger.Debug("rbac deny", slog.String("principal", sc.PrincipalID), slog.String("role", sc.Role.String()), slog.String("path", r.URL.Path))
			}
			location := verdict.Location
			if location == "" {
				location = g.Guard.DeniedPath()
			}
			http.Redirect(w, r, location, http.StatusSeeOther)
			return
		}

		ctx := ContextWithAccess(r.Context(), sc)
		if g.Nav != nil {
			ctx = shared.ContextWithNav(ctx, toLinks(g.Nav.Visible(sc.Role)))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func toLinks(entries []NavEntry) []shared.NavLink {
	links := make([]shared.NavLink, len(entries))
	for i, e := range entries {
		links[i] = shared.NavLink{Path: e.Path, Label: e.Label}
	}
	return links
}
