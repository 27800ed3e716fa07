package auth

import (
	"context"
)

type identityKey = string

const key identityKey = "identity"

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, key, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(key).(Identity)
	return identity, ok
}
