package shared

import (
	"context"
	"slices"
)

// Actor is the authenticated principal issuing a command.
type Actor struct {
	ID          int64
	Permissions []string
}

// Can reports whether the actor holds the permission.
func (a Actor) Can(permission string) bool {
	return slices.Contains(a.Permissions, permission)
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
