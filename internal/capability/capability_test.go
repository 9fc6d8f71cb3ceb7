package capability

import (
	"testing"
	"time"

	"github.com/sitehq/girder/model"
)

// --- StaticPolicyEvaluator tests ---

func TestStaticPolicyEvaluator_ResolveCapabilities(t *testing.T) {
	e, err := NewStaticPolicyEvaluator("testdata/policies.yaml")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator() error = %v", err)
	}

	caps, err := e.ResolveCapabilities("site_engineer")
	if err != nil {
		t.Fatalf("ResolveCapabilities() error = %v", err)
	}

	if !caps.Has(model.CapScheduleEdit) {
		t.Error("site_engineer should have schedule:edit")
	}
	if caps.Has(model.CapScheduleOverride) {
		t.Error("site_engineer should not have schedule:override")
	}
}

func TestStaticPolicyEvaluator_UnknownRole(t *testing.T) {
	e, _ := NewStaticPolicyEvaluator("testdata/policies.yaml")
	caps, _ := e.ResolveCapabilities("nonexistent")

	if len(caps) != 0 {
		t.Errorf("unknown role should return empty capabilities, got %v", caps)
	}
}

func TestStaticPolicyEvaluator_BadFile(t *testing.T) {
	_, err := NewStaticPolicyEvaluator("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("expected error for missing policy file")
	}
}

func TestDefaultPolicyEvaluator(t *testing.T) {
	e := NewDefaultPolicyEvaluator()

	caps, err := e.ResolveCapabilities("project_manager")
	if err != nil {
		t.Fatalf("ResolveCapabilities() error = %v", err)
	}
	if !caps.HasAll(model.CapWorkflowTransition, model.CapScheduleEdit, model.CapScheduleOverride) {
		t.Errorf("project_manager defaults = %v, want all three capabilities", caps)
	}

	caps, _ = e.ResolveCapabilities("qa_inspector")
	if caps.Has(model.CapScheduleOverride) {
		t.Error("qa_inspector must not have schedule:override by default")
	}
}

// --- Resolver tests ---

func TestResolver_Resolve_and_Cache(t *testing.T) {
	e, err := NewStaticPolicyEvaluator("testdata/policies.yaml")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator() error = %v", err)
	}
	r := NewResolver(e, 5*time.Minute)

	// First call is a cache miss, second a hit with the same result.
	caps1, err := r.Resolve("project_manager")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !caps1.Has(model.CapScheduleOverride) {
		t.Error("should have schedule:override")
	}

	caps2, err := r.Resolve("project_manager")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !caps2.Has(model.CapScheduleOverride) {
		t.Error("cached result should have schedule:override")
	}
}

func TestResolver_Invalidate(t *testing.T) {
	callCount := 0
	mock := &mockEvaluator{
		resolveFunc: func(role string) (model.CapabilitySet, error) {
			callCount++
			return model.CapabilitySet{model.CapWorkflowTransition: true}, nil
		},
	}
	r := NewResolver(mock, 5*time.Minute)

	r.Resolve("site_engineer")
	if callCount != 1 {
		t.Fatalf("callCount = %d, want 1", callCount)
	}

	r.Resolve("site_engineer")
	if callCount != 1 {
		t.Fatalf("callCount = %d after cache hit, want 1", callCount)
	}

	r.Invalidate("site_engineer")

	r.Resolve("site_engineer")
	if callCount != 2 {
		t.Fatalf("callCount = %d after invalidate, want 2", callCount)
	}
}

func TestResolver_TTLExpiry(t *testing.T) {
	callCount := 0
	mock := &mockEvaluator{
		resolveFunc: func(role string) (model.CapabilitySet, error) {
			callCount++
			return model.CapabilitySet{model.CapWorkflowTransition: true}, nil
		},
	}
	r := NewResolver(mock, 1*time.Millisecond) // very short TTL

	r.Resolve("site_engineer")
	time.Sleep(5 * time.Millisecond)
	r.Resolve("site_engineer") // should be expired

	if callCount != 2 {
		t.Fatalf("callCount = %d, want 2 (TTL expired)", callCount)
	}
}

// --- Mock PolicyEvaluator ---

type mockEvaluator struct {
	resolveFunc func(role string) (model.CapabilitySet, error)
}

func (m *mockEvaluator) ResolveCapabilities(role string) (model.CapabilitySet, error) {
	return m.resolveFunc(role)
}
