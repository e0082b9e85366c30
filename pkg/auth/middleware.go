package auth

import (
	"context"

	"chatrelay/pkg/identity"
)

type ctxIdentityKey struct{}

// WithIdentity returns a context carrying the verified identity.
func WithIdentity(ctx context.Context, ident identity.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey{}, ident)
}

// IdentityFromContext returns the verified identity for the request, if
// the auth middleware admitted it.
func IdentityFromContext(ctx context.Context) (identity.Identity, bool) {
	v := ctx.Value(ctxIdentityKey{})
	if v == nil {
		return identity.Identity{}, false
	}
	ident, ok := v.(identity.Identity)
	return ident, ok
}
