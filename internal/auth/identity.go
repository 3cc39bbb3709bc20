// ABOUTME: User identity type and request-context accessors
// ABOUTME: Identity flows through context from middleware to handlers

package auth

import "context"

// Identity is the authenticated user as supplied by the hosting
// environment. Email is the stable key used for conversation ownership.
type Identity struct {
	Email string
	Name  string
}

// contextKey is a private type to avoid context key collisions.
type contextKey struct{}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, ident)
}

// FromContext extracts the identity set by the middleware.
func FromContext(ctx context.Context) (*Identity, bool) {
	ident, ok := ctx.Value(contextKey{}).(*Identity)
	return ident, ok && ident != nil && ident.Email != ""
}
