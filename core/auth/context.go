package auth

import "context"

type contextKey int

const sessionKey contextKey = iota

func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFrom returns the authenticated session attached by the middleware,
// nil for anonymous requests.
func SessionFrom(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionKey).(*Session)
	return sess
}
