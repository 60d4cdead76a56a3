// Package requestctx carries the authenticated caller through request contexts.
package requestctx

import "context"

// Principal identifies the authenticated caller of a request.
type Principal struct {
	UserID string
	Role   string
}

type principalContextKey struct{}

// WithPrincipal stores the authenticated caller in context.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext returns the authenticated caller stored in context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	value, ok := ctx.Value(principalContextKey{}).(Principal)
	if !ok || value.UserID == "" {
		return Principal{}, false
	}
	return value, true
}

// UserIDFromContext returns the authenticated user identifier, or "".
func UserIDFromContext(ctx context.Context) string {
	principal, _ := PrincipalFromContext(ctx)
	return principal.UserID
}
