package middleware

import (
	"context"

	"github.com/novamart/orderflow/pkg/auth"
)

type contextKey string

const (
	ctxActor    contextKey = "actor"
	ctxOwnerKey contextKey = "owner_key"
)

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	if ctx == nil {
		return auth.Actor{}, false
	}
	if actor, ok := ctx.Value(ctxActor).(auth.Actor); ok {
		return actor, true
	}
	return auth.Actor{}, false
}

// OwnerKeyFromContext returns the cart owner key: the authenticated user id
// or the guest session token.
func OwnerKeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if key, ok := ctx.Value(ctxOwnerKey).(string); ok {
		return key
	}
	return ""
}

// WithActor injects the resolved actor into the context.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// WithOwnerKey injects the owner key into the context.
func WithOwnerKey(ctx context.Context, ownerKey string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxOwnerKey, ownerKey)
}
