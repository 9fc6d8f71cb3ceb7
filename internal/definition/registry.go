// Package definition holds the fixed, versioned catalogue of per-entity-type
// workflow state machines and validates it at startup.
package definition

import (
	"fmt"

	"github.com/sitehq/girder/model"
)

// Registry is an immutable lookup of workflow definitions by entity type.
// It is built once at process start; there is no hot reload, so reads need
// no synchronization.
type Registry struct {
	defs map[model.EntityType]model.WorkflowDefinition
}

// NewRegistry builds a registry from the given definitions. Definitions are
// assumed validated; NewValidatedRegistry is the normal entry point.
func NewRegistry(defs []model.WorkflowDefinition) *Registry {
	m := make(map[model.EntityType]model.WorkflowDefinition, len(defs))
	for _, d := range defs {
		m[d.EntityType] = d
	}
	return &Registry{defs: m}
}

// NewValidatedRegistry validates the definitions and builds a registry.
// Any validation error is fatal to startup.
func NewValidatedRegistry(defs []model.WorkflowDefinition, compile CompileCheck) (*Registry, error) {
	if errs := Validate(defs, compile); len(errs) > 0 {
		return nil, fmt.Errorf("workflow definitions invalid: %d error(s), first: %s", len(errs), errs[0].Error())
	}
	return NewRegistry(defs), nil
}

// Get returns the workflow definition for the given entity type.
func (r *Registry) Get(entityType model.EntityType) (model.WorkflowDefinition, error) {
	d, ok := r.defs[entityType]
	if !ok {
		return model.WorkflowDefinition{}, model.NewUnknownEntityTypeError(
			fmt.Sprintf("no workflow definition registered for entity type %q", entityType),
		)
	}
	return d, nil
}

// All returns every registered definition.
func (r *Registry) All() []model.WorkflowDefinition {
	out := make([]model.WorkflowDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}
