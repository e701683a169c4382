package domain

import "context"

type actorKey struct{}

type actor struct {
	typ string
	id  string
}

// WithActor records who is acting for audit entries written under ctx.
func WithActor(ctx context.Context, actorType ActorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{typ: string(actorType), id: actorID})
}

// ActorFromContext returns the actor set by WithActor.
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if a, ok := ctx.Value(actorKey{}).(actor); ok {
		return a.typ, a.id
	}
	return "", ""
}
