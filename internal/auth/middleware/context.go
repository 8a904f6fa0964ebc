package auth

import "context"

// Principal is the authenticated caller. Its Subject owns the import
// sessions it creates.
type Principal struct {
	Subject string
	Role    string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Owner is the subject recorded on sessions created under ctx; empty for
// unauthenticated requests.
func Owner(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.Subject
}
