package definition

import (
	"strings"
	"testing"

	"github.com/sitehq/girder/internal/guard"
	"github.com/sitehq/girder/model"
)

func validDef() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		EntityType: model.EntityRFI,
		Version:    1,
		States: []model.StateDef{
			{Name: "open", Initial: true},
			{Name: "closed", Terminal: true},
		},
		Transitions: []model.TransitionDef{
			{From: "open", To: "closed", Roles: []string{RoleProjectManager}},
		},
	}
}

func findCode(errs []VError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestValidate_valid(t *testing.T) {
	if errs := Validate([]model.WorkflowDefinition{validDef()}, nil); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestValidate_structural(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*model.WorkflowDefinition)
		wantCode string
	}{
		{
			name:     "no initial state",
			mutate:   func(d *model.WorkflowDefinition) { d.States[0].Initial = false },
			wantCode: "INITIAL_COUNT",
		},
		{
			name: "two initial states",
			mutate: func(d *model.WorkflowDefinition) {
				d.States = append(d.States, model.StateDef{Name: "extra", Initial: true})
				d.Transitions = append(d.Transitions, model.TransitionDef{From: "extra", To: "closed", Roles: []string{RoleProjectManager}})
			},
			wantCode: "INITIAL_COUNT",
		},
		{
			name: "transition to undefined state",
			mutate: func(d *model.WorkflowDefinition) {
				d.Transitions = append(d.Transitions, model.TransitionDef{From: "open", To: "limbo", Roles: []string{RoleProjectManager}})
			},
			wantCode: "UNDEFINED_STATE",
		},
		{
			name: "transition out of terminal state",
			mutate: func(d *model.WorkflowDefinition) {
				d.Transitions = append(d.Transitions, model.TransitionDef{From: "closed", To: "open", Roles: []string{RoleProjectManager}})
			},
			wantCode: "TERMINAL_EXIT",
		},
		{
			name: "dead-end non-terminal state",
			mutate: func(d *model.WorkflowDefinition) {
				d.States = append(d.States, model.StateDef{Name: "parked"})
				d.Transitions = append(d.Transitions, model.TransitionDef{From: "open", To: "parked", Roles: []string{RoleProjectManager}})
			},
			wantCode: "DEAD_END",
		},
		{
			name: "duplicate transition pair",
			mutate: func(d *model.WorkflowDefinition) {
				d.Transitions = append(d.Transitions, d.Transitions[0])
			},
			wantCode: "DUPLICATE",
		},
		{
			name:     "transition without roles",
			mutate:   func(d *model.WorkflowDefinition) { d.Transitions[0].Roles = nil },
			wantCode: "REQUIRED",
		},
		{
			name:     "duplicate state name",
			mutate:   func(d *model.WorkflowDefinition) { d.States = append(d.States, model.StateDef{Name: "open"}) },
			wantCode: "DUPLICATE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDef()
			tt.mutate(&def)
			errs := Validate([]model.WorkflowDefinition{def}, nil)
			if !findCode(errs, tt.wantCode) {
				t.Errorf("want code %s in %v", tt.wantCode, errs)
			}
		})
	}
}

func TestValidate_guardCompile(t *testing.T) {
	g := guard.NewEngine()

	def := validDef()
	def.Transitions[0].Guard = "approvals_recorded >=> 1"
	errs := Validate([]model.WorkflowDefinition{def}, g.Compile)
	if !findCode(errs, "GUARD_COMPILE") {
		t.Errorf("want GUARD_COMPILE in %v", errs)
	}

	def = validDef()
	def.Transitions[0].Guard = "approvals_recorded >= 1"
	if errs := Validate([]model.WorkflowDefinition{def}, g.Compile); len(errs) != 0 {
		t.Errorf("valid guard rejected: %v", errs)
	}
}

func TestVError_Error(t *testing.T) {
	e := VError{Path: "definitions[0].states", Code: "DEAD_END", Message: "non-terminal state \"parked\" has no outbound transition"}
	if !strings.Contains(e.Error(), "definitions[0].states") {
		t.Errorf("Error() = %q", e.Error())
	}
}
