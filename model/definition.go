package model

// StateDef describes a single state within a workflow definition. Exactly one
// state per definition is marked initial; terminal states have no outbound
// transitions and end the record's lifecycle (instances are never deleted,
// they terminate here instead).
type StateDef struct {
	Name     string `json:"name"`
	Initial  bool   `json:"initial,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
}

// TransitionDef describes one legal edge of a workflow state machine.
// Roles is the set of actor roles allowed to take the transition. Guard is an
// optional expression over externally-supplied entity attributes that must
// evaluate to true in addition to the role check; an empty guard is
// unconditional. Guard evaluation is pure and side-effect-free.
type TransitionDef struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Roles []string `json:"roles"`
	Guard string   `json:"guard,omitempty"`
}

// AllowsRole returns true if the given role may take this transition.
func (t TransitionDef) AllowsRole(role string) bool {
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// WorkflowDefinition is the immutable, versioned state machine for one entity
// type. Definitions are loaded once at process start and never mutated for
// the process lifetime.
type WorkflowDefinition struct {
	EntityType  EntityType      `json:"entity_type"`
	Version     int             `json:"version"`
	States      []StateDef      `json:"states"`
	Transitions []TransitionDef `json:"transitions"`
}

// InitialState returns the name of the state marked initial, or "" if the
// definition is malformed (the startup validator rejects that case).
func (d WorkflowDefinition) InitialState() string {
	for _, s := range d.States {
		if s.Initial {
			return s.Name
		}
	}
	return ""
}

// State returns the state definition with the given name.
func (d WorkflowDefinition) State(name string) (StateDef, bool) {
	for _, s := range d.States {
		if s.Name == name {
			return s, true
		}
	}
	return StateDef{}, false
}

// FindTransition returns the transition from one state to another, if the
// definition declares one. No-op self-transitions are illegal unless
// explicitly defined.
func (d WorkflowDefinition) FindTransition(from, to string) (TransitionDef, bool) {
	for _, t := range d.Transitions {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return TransitionDef{}, false
}

// TransitionsFrom returns all transitions leaving the given state.
func (d WorkflowDefinition) TransitionsFrom(from string) []TransitionDef {
	var out []TransitionDef
	for _, t := range d.Transitions {
		if t.From == from {
			out = append(out, t)
		}
	}
	return out
}
