// Package appcontext carries per-request values through context.Context.

package appcontext

import "context"

type contextKey string

// String returns the string representation of the context key.
func (c contextKey) String() string {
	return string(c)
}

// Context keys for values forwarded to the notes API.
var (
	ContextAuthToken = contextKey("authToken")
	ContextClientID  = contextKey("clientID")
)

// WithAuthToken returns a new context with the provided bearer token.
func WithAuthToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ContextAuthToken, token)
}

// GetAuthToken retrieves the bearer token from the context.
func GetAuthToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(ContextAuthToken).(string)
	return token, ok && token != ""
}

// WithClientID returns a new context tagged with the installation id.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextClientID, id)
}

// GetClientID retrieves the installation id from the context.
func GetClientID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextClientID).(string)
	return id, ok && id != ""
}
