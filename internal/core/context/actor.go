// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// Actor identifies the caller of a request. Authentication happens in an
// external gateway; the actor id arrives pre-validated in the X-Actor-ID
// header and is stamped on every ledger entry the request produces.
type Actor struct {
	ActorID string
	Name    string
}

type actorContextKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns Actor from context.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetActorID returns actor ID from context or empty string.
func GetActorID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil {
		return a.ActorID
	}
	return ""
}
