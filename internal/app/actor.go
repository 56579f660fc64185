package app

import (
	"context"
	"strings"

	"github.com/hylla/deskboard/internal/domain"
)

// Actor identifies who issued a mutation. Repositories stamp it onto ledger rows.
type Actor struct {
	ID   string
	Type domain.ActorType
}

type actorContextKey struct{}

// WithActor attaches normalized actor identity to ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, normalizeActor(actor))
}

// ActorFromContext returns the attached actor, if one with a non-empty id is present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}

func normalizeActor(actor Actor) Actor {
	actor.ID = strings.TrimSpace(actor.ID)
	actor.Type = domain.NormalizeActorType(actor.Type)
	return actor
}
