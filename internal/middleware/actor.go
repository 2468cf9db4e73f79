package middleware

import (
	"context"
	"net/http"
)

type ContextKey string

const ActorKey ContextKey = "actor"

const (
	ActorHeader = "X-Actor-ID"
	RoleHeader  = "X-Actor-Role"
)

type Role string

const (
	RoleParticipant Role = "participant"
	RoleOrganizer   Role = "organizer"
)

// Actor is whoever the upstream gateway says is making the request.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) Organizer() bool {
	return a.Role == RoleOrganizer
}

// LoadActor reads the actor headers set by the authenticating proxy in front
// of the service. Requests without them carry an anonymous participant.
func LoadActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := Actor{ID: r.Header.Get(ActorHeader), Role: RoleParticipant}
		if Role(r.Header.Get(RoleHeader)) == RoleOrganizer {
			actor.Role = RoleOrganizer
		}
		ctx := context.WithValue(r.Context(), ActorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOrganizer rejects requests whose actor is not an organizer.
func RequireOrganizer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := GetActorFromContext(r.Context())
		if !ok || !actor.Organizer() || actor.ID == "" {
			http.Error(w, "organizer role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetActorFromContext(ctx context.Context) (Actor, bool) {
	val := ctx.Value(ActorKey)
	if val == nil {
		return Actor{}, false
	}
	actor, ok := val.(Actor)
	return actor, ok
}
