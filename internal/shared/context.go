package shared

import "context"

type sessionContextKey struct{}

type navContextKey struct{}

// NavLink is a menu entry the current principal may follow.
type NavLink struct {
	Path  string
	Label string
}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithNav stores the visible navigation for the layout.
func ContextWithNav(ctx context.Context, links []NavLink) context.Context {
	return context.WithValue(ctx, navContextKey{}, links)
}

// NavFromContext returns the visible navigation, nil when none was computed.
func NavFromContext(ctx context.Context) []NavLink {
	links, _ := ctx.Value(navContextKey{}).([]NavLink)
	return links
}
