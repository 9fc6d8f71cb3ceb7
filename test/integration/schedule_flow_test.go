package integration

import (
	"net/http"
	"testing"
	"time"
)

const day = 24 * time.Hour

func createTask(t *testing.T, h *TestHarness, token, projectID, id string, duration time.Duration) {
	t.Helper()
	h.AssertJSON(t, h.POST("/v1/projects/"+projectID+"/tasks", map[string]any{
		"id":                 id,
		"name":               id,
		"estimated_duration": int64(duration),
	}, token), http.StatusCreated, nil)
}

func addDependency(t *testing.T, h *TestHarness, token, projectID, pred, succ, depType string, lag time.Duration) {
	t.Helper()
	h.AssertJSON(t, h.POST("/v1/projects/"+projectID+"/dependencies", map[string]any{
		"predecessor_task_id": pred,
		"successor_task_id":   succ,
		"type":                depType,
		"lag":                 int64(lag),
	}, token), http.StatusCreated, nil)
}

// Builds a concrete pour-and-cure chain and drives it through blocking,
// lag expiry, completion, and the readiness cascade.
func TestScheduleLifecycle(t *testing.T) {
	h := NewTestHarness(t)
	pm := h.GenerateToken("u-pm", "project_manager")

	createTask(t, h, pm, "p1", "excavate", 2*day)
	createTask(t, h, pm, "p1", "pour", day)
	createTask(t, h, pm, "p1", "strip_forms", day)

	addDependency(t, h, pm, "p1", "excavate", "pour", "finish_to_start", 0)
	// Curing time: forms come off one day after the pour finishes.
	addDependency(t, h, pm, "p1", "pour", "strip_forms", "finish_to_start", day)

	// Downstream tasks are blocked while the chain head is untouched.
	h.AssertError(t, h.POST("/v1/tasks/pour/start", nil, pm), http.StatusConflict, "TASK_BLOCKED")

	h.AssertJSON(t, h.POST("/v1/tasks/excavate/start", nil, pm), http.StatusOK, nil)
	h.Advance(2 * day)

	var completion struct {
		NewlyReady []string `json:"newly_ready"`
	}
	h.AssertJSON(t, h.POST("/v1/tasks/excavate/complete", nil, pm), http.StatusOK, &completion)
	if len(completion.NewlyReady) != 1 || completion.NewlyReady[0] != "pour" {
		t.Fatalf("newly_ready = %v, want [pour]", completion.NewlyReady)
	}

	h.AssertJSON(t, h.POST("/v1/tasks/pour/start", nil, pm), http.StatusOK, nil)
	h.Advance(day)
	h.AssertJSON(t, h.POST("/v1/tasks/pour/complete", nil, pm), http.StatusOK, &completion)
	// The lag window has not elapsed, so the successor is not yet ready.
	if len(completion.NewlyReady) != 0 {
		t.Fatalf("newly_ready = %v, want none inside the lag window", completion.NewlyReady)
	}

	var readiness struct {
		Ready   bool `json:"ready"`
		Reasons []struct {
			Detail string `json:"detail"`
		} `json:"reasons"`
	}
	h.AssertJSON(t, h.GET("/v1/tasks/strip_forms/readiness", pm), http.StatusOK, &readiness)
	if readiness.Ready {
		t.Fatal("strip_forms must stay blocked until the curing lag elapses")
	}
	if len(readiness.Reasons) != 1 {
		t.Fatalf("reasons = %v", readiness.Reasons)
	}

	h.Advance(day)
	h.AssertJSON(t, h.GET("/v1/tasks/strip_forms/readiness", pm), http.StatusOK, &readiness)
	if !readiness.Ready {
		t.Fatal("strip_forms must be ready after the lag elapses")
	}
	h.AssertJSON(t, h.POST("/v1/tasks/strip_forms/start", nil, pm), http.StatusOK, nil)
}

// An override unblocks a task without touching its predecessors, leaves the
// blocking reasons visible, and lands in the audit trail.
func TestScheduleOverrideFlow(t *testing.T) {
	h := NewTestHarness(t)
	pm := h.GenerateToken("u-pm", "project_manager")
	director := h.GenerateToken("u-dir", "client_director")
	inspector := h.GenerateToken("u-qa", "qa_inspector")

	createTask(t, h, pm, "p2", "inspect", day)
	createTask(t, h, pm, "p2", "handover", day)
	addDependency(t, h, pm, "p2", "inspect", "handover", "finish_to_start", 0)

	h.AssertError(t, h.POST("/v1/tasks/handover/overrides", map[string]any{
		"reason": "client walkthrough moved up",
	}, inspector), http.StatusForbidden, "FORBIDDEN")

	h.AssertError(t, h.POST("/v1/tasks/handover/overrides", map[string]any{
		"reason": "   ",
	}, director), http.StatusUnprocessableEntity, "REASON_REQUIRED")

	h.AssertJSON(t, h.POST("/v1/tasks/handover/overrides", map[string]any{
		"reason": "client walkthrough moved up",
	}, director), http.StatusCreated, nil)

	var readiness struct {
		Ready      bool `json:"ready"`
		Overridden bool `json:"overridden"`
		Reasons    []struct {
			PredecessorID string `json:"predecessor_task_id"`
		} `json:"reasons"`
	}
	h.AssertJSON(t, h.GET("/v1/tasks/handover/readiness", pm), http.StatusOK, &readiness)
	if !readiness.Ready || !readiness.Overridden {
		t.Fatalf("readiness = %+v, want ready and overridden", readiness)
	}
	if len(readiness.Reasons) != 1 || readiness.Reasons[0].PredecessorID != "inspect" {
		t.Errorf("reasons = %+v, want the bypassed dependency listed", readiness.Reasons)
	}

	h.AssertJSON(t, h.POST("/v1/tasks/handover/start", nil, pm), http.StatusOK, nil)

	var trail struct {
		Entries []struct {
			Kind      string `json:"kind"`
			ActorRole string `json:"actor_role"`
			Reason    string `json:"reason"`
		} `json:"entries"`
	}
	h.AssertJSON(t, h.GET("/v1/tasks/handover/audit", pm), http.StatusOK, &trail)
	var overrides int
	for _, e := range trail.Entries {
		if e.Kind == "override_granted" {
			overrides++
			if e.ActorRole != "client_director" || e.Reason != "client walkthrough moved up" {
				t.Errorf("override entry = %+v", e)
			}
		}
	}
	if overrides != 1 {
		t.Errorf("override_granted entries = %d, want 1", overrides)
	}
}

func TestCriticalPathOverHTTP(t *testing.T) {
	h := NewTestHarness(t)
	pm := h.GenerateToken("u-pm", "project_manager")

	createTask(t, h, pm, "p3", "mobilize", 2*day)
	createTask(t, h, pm, "p3", "foundation", 3*day)
	createTask(t, h, pm, "p3", "landscaping", day)
	addDependency(t, h, pm, "p3", "mobilize", "foundation", "finish_to_start", 0)
	addDependency(t, h, pm, "p3", "mobilize", "landscaping", "finish_to_start", 0)

	var analysis struct {
		ProjectDuration int64 `json:"project_duration"`
		CriticalPath    []string `json:"critical_path"`
		Tasks           map[string]struct {
			Float int64 `json:"float"`
		} `json:"tasks"`
	}
	h.AssertJSON(t, h.GET("/v1/projects/p3/critical-path", pm), http.StatusOK, &analysis)

	if analysis.ProjectDuration != int64(5*day) {
		t.Errorf("project duration = %v, want 5 days", time.Duration(analysis.ProjectDuration))
	}
	if len(analysis.CriticalPath) != 2 || analysis.CriticalPath[0] != "mobilize" || analysis.CriticalPath[1] != "foundation" {
		t.Errorf("critical path = %v, want [mobilize foundation]", analysis.CriticalPath)
	}
	if analysis.Tasks["landscaping"].Float != int64(2*day) {
		t.Errorf("landscaping float = %v, want 2 days", time.Duration(analysis.Tasks["landscaping"].Float))
	}
}
