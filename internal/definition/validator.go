package definition

import (
	"fmt"

	"github.com/sitehq/girder/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// CompileCheck verifies that a guard expression compiles. Nil skips guard
// checks.
type CompileCheck func(expression string) error

// Validate checks every definition structurally:
//   - exactly one initial state, unique state names
//   - transitions only reference defined states, none leave a terminal state
//   - no duplicate (from, to) pairs, no role-less transitions
//   - every non-terminal state has at least one outbound transition
//   - guard expressions compile
func Validate(defs []model.WorkflowDefinition, compile CompileCheck) []VError {
	var errs []VError
	seen := make(map[model.EntityType]bool)

	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d](%s)", i, def.EntityType)
		if def.EntityType == "" {
			errs = append(errs, VError{Path: prefix + ".entity_type", Code: "REQUIRED", Message: "entity_type is required"})
		}
		if seen[def.EntityType] {
			errs = append(errs, VError{Path: prefix + ".entity_type", Code: "DUPLICATE", Message: fmt.Sprintf("entity type %q defined twice", def.EntityType)})
		}
		seen[def.EntityType] = true
		if def.Version < 1 {
			errs = append(errs, VError{Path: prefix + ".version", Code: "REQUIRED", Message: "version must be >= 1"})
		}
		errs = append(errs, validateStates(prefix, def)...)
		errs = append(errs, validateTransitions(prefix, def, compile)...)
	}
	return errs
}

func validateStates(prefix string, def model.WorkflowDefinition) []VError {
	var errs []VError

	if len(def.States) == 0 {
		return append(errs, VError{Path: prefix + ".states", Code: "REQUIRED", Message: "at least one state is required"})
	}

	names := make(map[string]bool, len(def.States))
	initials := 0
	for i, s := range def.States {
		sp := fmt.Sprintf("%s.states[%d]", prefix, i)
		if s.Name == "" {
			errs = append(errs, VError{Path: sp + ".name", Code: "REQUIRED", Message: "state name is required"})
			continue
		}
		if names[s.Name] {
			errs = append(errs, VError{Path: sp + ".name", Code: "DUPLICATE", Message: fmt.Sprintf("state %q defined twice", s.Name)})
		}
		names[s.Name] = true
		if s.Initial {
			initials++
			if s.Terminal {
				errs = append(errs, VError{Path: sp, Code: "INITIAL_TERMINAL", Message: fmt.Sprintf("state %q cannot be both initial and terminal", s.Name)})
			}
		}
	}
	if initials != 1 {
		errs = append(errs, VError{Path: prefix + ".states", Code: "INITIAL_COUNT", Message: fmt.Sprintf("exactly one initial state required, found %d", initials)})
	}

	// Every non-terminal state needs a way out, or records get stranded in a
	// state no transition can leave.
	outbound := make(map[string]int)
	for _, t := range def.Transitions {
		outbound[t.From]++
	}
	for _, s := range def.States {
		if !s.Terminal && outbound[s.Name] == 0 {
			errs = append(errs, VError{
				Path: prefix + ".states", Code: "DEAD_END",
				Message: fmt.Sprintf("non-terminal state %q has no outbound transition", s.Name),
			})
		}
	}
	return errs
}

func validateTransitions(prefix string, def model.WorkflowDefinition, compile CompileCheck) []VError {
	var errs []VError

	states := make(map[string]model.StateDef, len(def.States))
	for _, s := range def.States {
		states[s.Name] = s
	}

	pairs := make(map[[2]string]bool)
	for i, t := range def.Transitions {
		tp := fmt.Sprintf("%s.transitions[%d]", prefix, i)

		from, fromOK := states[t.From]
		if !fromOK {
			errs = append(errs, VError{Path: tp + ".from", Code: "UNDEFINED_STATE", Message: fmt.Sprintf("transition references undefined state %q", t.From)})
		} else if from.Terminal {
			errs = append(errs, VError{Path: tp + ".from", Code: "TERMINAL_EXIT", Message: fmt.Sprintf("transition leaves terminal state %q", t.From)})
		}
		if _, ok := states[t.To]; !ok {
			errs = append(errs, VError{Path: tp + ".to", Code: "UNDEFINED_STATE", Message: fmt.Sprintf("transition references undefined state %q", t.To)})
		}

		pair := [2]string{t.From, t.To}
		if pairs[pair] {
			errs = append(errs, VError{Path: tp, Code: "DUPLICATE", Message: fmt.Sprintf("duplicate transition %s -> %s", t.From, t.To)})
		}
		pairs[pair] = true

		if len(t.Roles) == 0 {
			errs = append(errs, VError{Path: tp + ".roles", Code: "REQUIRED", Message: "at least one allowed role is required"})
		}

		if t.Guard != "" && compile != nil {
			if err := compile(t.Guard); err != nil {
				errs = append(errs, VError{Path: tp + ".guard", Code: "GUARD_COMPILE", Message: err.Error()})
			}
		}
	}
	return errs
}
