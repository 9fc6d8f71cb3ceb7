package workflow

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/sitehq/girder/internal/audit"
	"github.com/sitehq/girder/internal/definition"
	"github.com/sitehq/girder/internal/guard"
	"github.com/sitehq/girder/model"
)

func testActor(role string) model.Actor {
	return model.Actor{
		ID:           "user-" + role,
		Role:         role,
		TenantID:     "tenant-1",
		Capabilities: model.CapabilitySet{model.CapWorkflowTransition: true},
	}
}

func newTestExecutor(t *testing.T) (*Executor, *MemInstanceStore, *audit.MemStore) {
	t.Helper()
	auditStore := audit.NewMemStore()
	store := NewMemInstanceStore(auditStore)
	g := guard.NewEngine()
	registry, err := definition.NewValidatedRegistry(definition.Builtin(), g.Compile)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	exec := NewExecutor(registry, store, auditStore, g, nil, zap.NewNop())
	return exec, store, auditStore
}

func mustCreate(t *testing.T, exec *Executor, entityType model.EntityType, entityID string) model.WorkflowInstance {
	t.Helper()
	inst, err := exec.CreateInstance(context.Background(), entityType, entityID)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	return inst
}

func TestExecutor_CreateInstance(t *testing.T) {
	exec, store, _ := newTestExecutor(t)

	inst := mustCreate(t, exec, model.EntityChangeRequest, "cr-1")
	if inst.CurrentState != "draft" {
		t.Errorf("CurrentState = %q, want draft", inst.CurrentState)
	}
	if inst.Version != 1 {
		t.Errorf("Version = %d, want 1", inst.Version)
	}
	if store.Len() != 1 {
		t.Errorf("store.Len() = %d", store.Len())
	}

	// Unknown entity type fails before any write.
	if _, err := exec.CreateInstance(context.Background(), "purchase_order", "po-1"); model.CodeOf(err) != model.ErrUnknownEntityType {
		t.Errorf("code = %q, want UNKNOWN_ENTITY_TYPE", model.CodeOf(err))
	}

	// Duplicate registration conflicts.
	if _, err := exec.CreateInstance(context.Background(), model.EntityChangeRequest, "cr-1"); model.CodeOf(err) != model.ErrConflict {
		t.Errorf("code = %q, want CONFLICT", model.CodeOf(err))
	}
}

func TestExecutor_Transition_success(t *testing.T) {
	exec, _, auditStore := newTestExecutor(t)
	mustCreate(t, exec, model.EntityChangeRequest, "cr-1")
	ctx := context.Background()

	inst, err := exec.Transition(ctx, testActor(definition.RoleSiteEngineer), TransitionRequest{
		EntityType:      model.EntityChangeRequest,
		EntityID:        "cr-1",
		ToState:         "submitted",
		ExpectedVersion: 1,
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if inst.CurrentState != "submitted" {
		t.Errorf("CurrentState = %q", inst.CurrentState)
	}
	if inst.Version != 2 {
		t.Errorf("Version = %d, want 2", inst.Version)
	}

	// Exactly one audit append per successful transition.
	trail, err := exec.AuditTrail(ctx, model.EntityChangeRequest, "cr-1")
	if err != nil {
		t.Fatalf("AuditTrail: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("trail len = %d, want 1", len(trail))
	}
	e := trail[0]
	if e.Kind != model.AuditTransition || e.FromState != "draft" || e.ToState != "submitted" {
		t.Errorf("entry = %+v", e)
	}
	if e.InstanceVersion != 1 {
		t.Errorf("InstanceVersion = %d, want 1 (version before transition)", e.InstanceVersion)
	}
	if auditStore.Len() != 1 {
		t.Errorf("audit Len = %d", auditStore.Len())
	}
}

func TestExecutor_Transition_errors(t *testing.T) {
	exec, _, auditStore := newTestExecutor(t)
	mustCreate(t, exec, model.EntityChangeRequest, "cr-1")
	ctx := context.Background()

	tests := []struct {
		name     string
		actor    model.Actor
		req      TransitionRequest
		wantCode string
	}{
		{
			name:  "instance not found",
			actor: testActor(definition.RoleProjectManager),
			req: TransitionRequest{
				EntityType: model.EntityChangeRequest, EntityID: "cr-missing",
				ToState: "submitted", ExpectedVersion: 1,
			},
			wantCode: model.ErrNotFound,
		},
		{
			name:  "illegal transition skips review",
			actor: testActor(definition.RoleProjectManager),
			req: TransitionRequest{
				EntityType: model.EntityChangeRequest, EntityID: "cr-1",
				ToState: "approved", ExpectedVersion: 1,
			},
			wantCode: model.ErrIllegalTransition,
		},
		{
			name:  "self transition not defined",
			actor: testActor(definition.RoleProjectManager),
			req: TransitionRequest{
				EntityType: model.EntityChangeRequest, EntityID: "cr-1",
				ToState: "draft", ExpectedVersion: 1,
			},
			wantCode: model.ErrIllegalTransition,
		},
		{
			name:  "role not allowed",
			actor: testActor(definition.RoleQAInspector),
			req: TransitionRequest{
				EntityType: model.EntityChangeRequest, EntityID: "cr-1",
				ToState: "submitted", ExpectedVersion: 1,
			},
			wantCode: model.ErrForbidden,
		},
		{
			name:  "stale expected version",
			actor: testActor(definition.RoleSiteEngineer),
			req: TransitionRequest{
				EntityType: model.EntityChangeRequest, EntityID: "cr-1",
				ToState: "submitted", ExpectedVersion: 7,
			},
			wantCode: model.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.Transition(ctx, tt.actor, tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if model.CodeOf(err) != tt.wantCode {
				t.Errorf("code = %q, want %q", model.CodeOf(err), tt.wantCode)
			}
		})
	}

	// No rejected request may leave an audit entry behind.
	if auditStore.Len() != 0 {
		t.Errorf("audit Len = %d after rejected transitions, want 0", auditStore.Len())
	}
}

func TestExecutor_Transition_guard(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	mustCreate(t, exec, model.EntityChangeRequest, "cr-1")
	ctx := context.Background()
	pm := testActor(definition.RoleProjectManager)

	advance := func(to string, version int) {
		t.Helper()
		if _, err := exec.Transition(ctx, pm, TransitionRequest{
			EntityType: model.EntityChangeRequest, EntityID: "cr-1",
			ToState: to, ExpectedVersion: version,
		}); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}
	advance("submitted", 1)
	advance("under_review", 2)

	// Approval levels not all recorded: guard rejects.
	_, err := exec.Transition(ctx, pm, TransitionRequest{
		EntityType: model.EntityChangeRequest, EntityID: "cr-1",
		ToState: "approved", ExpectedVersion: 3,
		Attributes: map[string]any{"approvals_recorded": 1, "approvals_required": 2},
	})
	if model.CodeOf(err) != model.ErrGuardNotSatisfied {
		t.Fatalf("code = %q, want GUARD_NOT_SATISFIED", model.CodeOf(err))
	}

	// All levels recorded: transition goes through.
	inst, err := exec.Transition(ctx, pm, TransitionRequest{
		EntityType: model.EntityChangeRequest, EntityID: "cr-1",
		ToState: "approved", ExpectedVersion: 3,
		Attributes: map[string]any{"approvals_recorded": 2, "approvals_required": 2},
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if inst.CurrentState != "approved" {
		t.Errorf("CurrentState = %q", inst.CurrentState)
	}
}

// A site engineer cannot grant final approval on a high-budget-impact change
// request routed through the two-level variant.
func TestExecutor_Transition_finalApprovalRequiresClientDirector(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	mustCreate(t, exec, model.EntityMultiLevelApprovalL2, "cr-1-approval")
	ctx := context.Background()
	pm := testActor(definition.RoleProjectManager)

	if _, err := exec.Transition(ctx, pm, TransitionRequest{
		EntityType: model.EntityMultiLevelApprovalL2, EntityID: "cr-1-approval",
		ToState: "level_1_approved", ExpectedVersion: 1,
	}); err != nil {
		t.Fatalf("level 1: %v", err)
	}
	if _, err := exec.Transition(ctx, pm, TransitionRequest{
		EntityType: model.EntityMultiLevelApprovalL2, EntityID: "cr-1-approval",
		ToState: "level_2_approved", ExpectedVersion: 2,
	}); err != nil {
		t.Fatalf("level 2: %v", err)
	}

	_, err := exec.Transition(ctx, testActor(definition.RoleSiteEngineer), TransitionRequest{
		EntityType: model.EntityMultiLevelApprovalL2, EntityID: "cr-1-approval",
		ToState: "final_approved", ExpectedVersion: 3,
	})
	if model.CodeOf(err) != model.ErrForbidden {
		t.Fatalf("site_engineer final approval code = %q, want FORBIDDEN", model.CodeOf(err))
	}

	if _, err := exec.Transition(ctx, testActor(definition.RoleClientDirector), TransitionRequest{
		EntityType: model.EntityMultiLevelApprovalL2, EntityID: "cr-1-approval",
		ToState: "final_approved", ExpectedVersion: 3,
	}); err != nil {
		t.Fatalf("client_director final approval: %v", err)
	}
}

// Two concurrent transitions from the same starting version: exactly one
// commits, the other observes CONFLICT.
func TestExecutor_Transition_concurrent(t *testing.T) {
	exec, _, auditStore := newTestExecutor(t)
	mustCreate(t, exec, model.EntityChangeRequest, "cr-1")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = exec.Transition(ctx, testActor(definition.RoleSiteEngineer), TransitionRequest{
				EntityType: model.EntityChangeRequest, EntityID: "cr-1",
				ToState: "submitted", ExpectedVersion: 1,
			})
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case model.CodeOf(err) == model.ErrConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Errorf("successes = %d, conflicts = %d, want 1 and 1", successes, conflicts)
	}
	if auditStore.Len() != 1 {
		t.Errorf("audit Len = %d, want 1", auditStore.Len())
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	done    chan struct{}
	entries []model.AuditEntry
}

func (n *recordingNotifier) TransitionApplied(_ context.Context, _ model.WorkflowInstance, entry model.AuditEntry) {
	n.mu.Lock()
	n.entries = append(n.entries, entry)
	n.mu.Unlock()
	n.done <- struct{}{}
}

func TestExecutor_Transition_notifies(t *testing.T) {
	auditStore := audit.NewMemStore()
	store := NewMemInstanceStore(auditStore)
	g := guard.NewEngine()
	registry, err := definition.NewValidatedRegistry(definition.Builtin(), g.Compile)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	notifier := &recordingNotifier{done: make(chan struct{}, 1)}
	exec := NewExecutor(registry, store, auditStore, g, notifier, zap.NewNop())

	mustCreate(t, exec, model.EntityRFI, "rfi-1")
	if _, err := exec.Transition(context.Background(), testActor(definition.RoleProjectManager), TransitionRequest{
		EntityType: model.EntityRFI, EntityID: "rfi-1",
		ToState: "answered", ExpectedVersion: 1,
	}); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	<-notifier.done
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.entries) != 1 || notifier.entries[0].ToState != "answered" {
		t.Errorf("notifier entries = %+v", notifier.entries)
	}
}
