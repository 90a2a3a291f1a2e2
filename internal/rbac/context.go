package rbac

import "context"

type resolverContextKey struct{}

// ContextWithResolver stores the session resolver in context.
func ContextWithResolver(ctx context.Context, r *Resolver) context.Context {
	return context.WithValue(ctx, resolverContextKey{}, r)
}

// FromContext extracts the session resolver. A context without one yields a
// resolver that denies everything.
func FromContext(ctx context.Context) *Resolver {
	if r, ok := ctx.Value(resolverContextKey{}).(*Resolver); ok && r != nil {
		return r
	}
	r := NewResolver(nil, nil)
	r.Clear()
	return r
}
