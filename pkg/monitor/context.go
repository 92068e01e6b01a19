package monitor

import "context"

type sessionKey struct{}

// WithSessionID returns a context carrying the monitor session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionIDFromContext returns the session id passed to sinks, if any.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
