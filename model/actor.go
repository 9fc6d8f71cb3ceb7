package model

import "context"

// Well-known capability strings checked by the engine. Role membership and
// the role-to-capability mapping are delegated to the policy layer; the
// engine only ever tests for these flags on the resolved Actor.
const (
	CapWorkflowTransition = "workflow:transition"
	CapScheduleEdit       = "schedule:edit"
	CapScheduleOverride   = "schedule:override"
)

// CapabilitySet is a set of capability strings resolved for an actor.
type CapabilitySet map[string]bool

// Has returns true if the set contains the given capability.
func (s CapabilitySet) Has(capability string) bool {
	return s[capability]
}

// HasAll returns true if the set contains every given capability.
func (s CapabilitySet) HasAll(capabilities ...string) bool {
	for _, c := range capabilities {
		if !s[c] {
			return false
		}
	}
	return true
}

// Actor identifies who is performing an operation. It is resolved once per
// request by the transport layer and threaded explicitly through every
// engine call; there is no ambient current-user state.
type Actor struct {
	ID           string
	Role         string
	TenantID     string
	Capabilities CapabilitySet
}

// HasCapability returns true if the actor holds the given capability.
func (a Actor) HasCapability(capability string) bool {
	return a.Capabilities.Has(capability)
}

type actorKey struct{}

// WithActor attaches an Actor to the given context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom extracts the Actor from the context. The second return value is
// false if no actor is attached.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
