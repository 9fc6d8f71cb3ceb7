package definition

import "github.com/sitehq/girder/model"

// Role names as issued by the platform's identity provider. The engine never
// interprets these beyond matching them against transition role lists; the
// role-to-capability mapping lives in the policy file.
const (
	RoleSiteEngineer       = "site_engineer"
	RoleProjectManager     = "project_manager"
	RoleClientDirector     = "client_director"
	RoleQAInspector        = "qa_inspector"
	RoleSafetyOfficer      = "safety_officer"
	RoleDocumentController = "document_controller"
)

// Builtin returns the fixed catalogue of workflow definitions, one per
// entity type. Changing a machine means bumping its version and shipping a
// new build; there is no runtime authoring or hot reload.
func Builtin() []model.WorkflowDefinition {
	return []model.WorkflowDefinition{
		changeRequest(),
		rfi(),
		document(),
		ncr(),
		submittal(),
		safetyIncident(),
		baseline(),
		multiLevelApproval(),
		multiLevelApprovalL2(),
	}
}

// changeRequest: draft -> submitted -> under_review -> {approved | rejected},
// with a rework loop back to draft. Final approval is guarded on the recorded
// approval levels; which level count applies is resolved by the external
// budget policy before the first transition and supplied as attributes.
func changeRequest() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		EntityType: model.EntityChangeRequest,
		Version:    1,
		States: []model.StateDef{
			{Name: "draft", Initial: true},
			{Name: "submitted"},
			{Name: "under_review"},
			{Name: "approved", Terminal: true},
			{Name: "rejected", Terminal: true},
		},
		Transitions: []model.TransitionDef{
			{From: "draft", To: "submitted", Roles: []string{RoleSiteEngineer, RoleProjectManager}},
			{From: "submitted", To: "under_review", Roles: []string{RoleProjectManager}},
			{From: "under_review", To: "draft", Roles: []string{RoleProjectManager}},
			{
				From: "under_review", To: "approved",
				Roles: []string{RoleProjectManager, RoleClientDirector},
				Guard: "approvals_recorded >= approvals_required",
			},
			{From: "under_review", To: "rejected", Roles: []string{RoleProjectManager, RoleClientDirector}},
		},
	}
}

func rfi() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		EntityType: model.EntityRFI,
		Version:    1,
		States: []model.StateDef{
			{Name: "open", Initial: true},
			{Name: "answered"},
			{Name: "closed", Terminal: true},
		},
		Transitions: []model.TransitionDef{
			{From: "open", To: "answered", Roles: []string{RoleProjectManager}},
			{From: "answered", To: "open", Roles: []string{RoleSiteEngineer}},
			{From: "answered", To: "closed", Roles: []string{RoleSiteEngineer, RoleProjectManager}},
		},
	}
}

func document() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		EntityType: model.EntityDocument,
		Version:    1,
		States: []model.StateDef{
			{Name: "draft", Initial: true},
			{Name: "under_review"},
			{Name: "approved"},
			{Name: "superseded", Terminal: true},
			{Name: "rejected", Terminal: true},
		},
		Transitions: []model.TransitionDef{
			{From: "draft", To: "under_review", Roles: []string{RoleDocumentController, RoleSiteEngineer}},
			{From: "under_review", To: "approved", Roles: []string{RoleProjectManager, RoleDocumentController}},
			{From: "under_review", To: "rejected", Roles: []string{RoleProjectManager}},
			// A newer revision supersedes the approved one.
			{From: "approved", To: "superseded", Roles: []string{RoleDocumentController}},
		},
	}
}

func ncr() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		EntityType: model.EntityNCR,
		Version:    1,
		States: []model.StateDef{
			{Name: "open", Initial: true},
			{Name: "corrective_action"},
			{Name: "verification"},
			{Name: "closed", Terminal: true},
		},
		Transitions: []model.TransitionDef{
			{From: "open", To: "corrective_action", Roles: []string{RoleQAInspector, RoleProjectManager}},
			{From: "corrective_action", To: "verification", Roles: []string{RoleSiteEngineer, RoleProjectManager}},
			// Verification can fail and loop back.
			{From: "verification", To: "corrective_action", Roles: []string{RoleQAInspector}},
			{From: "verification", To: "closed", Roles: []string{RoleQAInspector}},
		},
	}
}

func submittal() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		EntityType: model.EntitySubmittal,
		Version:    1,
		States: []model.StateDef{
			{Name: "pending", Initial: true},
			{Name: "under_review"},
			{Name: "revise_resubmit"},
			{Name: "approved", Terminal: true},
			{Name: "approved_as_noted", Terminal: true},
		},
		Transitions: []model.TransitionDef{
			{From: "pending", To: "under_review", Roles: []string{RoleDocumentController, RoleProjectManager}},
			{From: "under_review", To: "approved", Roles: []string{RoleProjectManager, RoleClientDirector}},
			{From: "under_review", To: "approved_as_noted", Roles: []string{RoleProjectManager, RoleClientDirector}},
			{From: "under_review", To: "revise_resubmit", Roles: []string{RoleProjectManager}},
			{From: "revise_resubmit", To: "pending", Roles: []string{RoleSiteEngineer, RoleDocumentController}},
		},
	}
}

func safetyIncident() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		EntityType: model.EntitySafetyIncident,
		Version:    1,
		States: []model.StateDef{
			{Name: "reported", Initial: true},
			{Name: "under_investigation"},
			{Name: "action_required"},
			{Name: "resolved", Terminal: true},
		},
		Transitions: []model.TransitionDef{
			{From: "reported", To: "under_investigation", Roles: []string{RoleSafetyOfficer}},
			{From: "under_investigation", To: "action_required", Roles: []string{RoleSafetyOfficer}},
			{
				From: "under_investigation", To: "resolved",
				Roles: []string{RoleSafetyOfficer, RoleProjectManager},
				Guard: `severity != "major" || corrective_actions_closed == true`,
			},
			{From: "action_required", To: "resolved", Roles: []string{RoleSafetyOfficer, RoleProjectManager}},
		},
	}
}

func baseline() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		EntityType: model.EntityBaseline,
		Version:    1,
		States: []model.StateDef{
			{Name: "draft", Initial: true},
			{Name: "proposed"},
			{Name: "approved", Terminal: true},
			{Name: "rejected", Terminal: true},
		},
		Transitions: []model.TransitionDef{
			{From: "draft", To: "proposed", Roles: []string{RoleProjectManager}},
			{From: "proposed", To: "draft", Roles: []string{RoleProjectManager}},
			{From: "proposed", To: "approved", Roles: []string{RoleClientDirector}},
			{From: "proposed", To: "rejected", Roles: []string{RoleClientDirector}},
		},
	}
}

// multiLevelApproval is the single-level variant, used when the change
// request's budget impact stays under the external policy's first threshold.
func multiLevelApproval() model.WorkflowDefinition {
	pmOrAbove := []string{RoleProjectManager, RoleClientDirector}
	return model.WorkflowDefinition{
		EntityType: model.EntityMultiLevelApproval,
		Version:    1,
		States: []model.StateDef{
			{Name: "pending", Initial: true},
			{Name: "level_1_approved"},
			{Name: "final_approved", Terminal: true},
			{Name: "rejected", Terminal: true},
		},
		Transitions: []model.TransitionDef{
			{From: "pending", To: "level_1_approved", Roles: []string{RoleProjectManager}},
			{From: "level_1_approved", To: "final_approved", Roles: pmOrAbove},
			{From: "pending", To: "rejected", Roles: pmOrAbove},
			{From: "level_1_approved", To: "rejected", Roles: pmOrAbove},
		},
	}
}

// multiLevelApprovalL2 is the two-level variant for high-budget-impact
// change requests: pending -> level_1_approved -> level_2_approved ->
// final_approved, with rejected reachable from every non-terminal state by a
// project manager or above. Final approval requires the client director.
func multiLevelApprovalL2() model.WorkflowDefinition {
	pmOrAbove := []string{RoleProjectManager, RoleClientDirector}
	return model.WorkflowDefinition{
		EntityType: model.EntityMultiLevelApprovalL2,
		Version:    1,
		States: []model.StateDef{
			{Name: "pending", Initial: true},
			{Name: "level_1_approved"},
			{Name: "level_2_approved"},
			{Name: "final_approved", Terminal: true},
			{Name: "rejected", Terminal: true},
		},
		Transitions: []model.TransitionDef{
			{From: "pending", To: "level_1_approved", Roles: []string{RoleProjectManager}},
			{From: "level_1_approved", To: "level_2_approved", Roles: pmOrAbove},
			{From: "level_2_approved", To: "final_approved", Roles: []string{RoleClientDirector}},
			{From: "pending", To: "rejected", Roles: pmOrAbove},
			{From: "level_1_approved", To: "rejected", Roles: pmOrAbove},
			{From: "level_2_approved", To: "rejected", Roles: pmOrAbove},
		},
	}
}
