package middleware

import (
	"context"

	"github.com/angelmondragon/marketsettle-backend/internal/identity"
)

type contextKey string

const ctxActor contextKey = "actor"

// ActorFromContext returns the authenticated caller resolved by Auth.
func ActorFromContext(ctx context.Context) (identity.Actor, bool) {
	if ctx == nil {
		return identity.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(identity.Actor)
	return actor, ok
}

// WithActor injects the resolved caller into the context.
func WithActor(ctx context.Context, actor identity.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

func userIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID.String()
	}
	return ""
}
