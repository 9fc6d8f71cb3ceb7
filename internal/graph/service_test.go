package graph

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sitehq/girder/internal/audit"
	"github.com/sitehq/girder/model"
)

func newTestService(t *testing.T, clock Clock) (*Service, *audit.MemStore) {
	t.Helper()
	auditStore := audit.NewMemStore()
	store := NewMemStore(auditStore)
	return NewService(store, auditStore, zap.NewNop(), clock), auditStore
}

func scheduler(caps ...string) model.Actor {
	set := model.CapabilitySet{}
	for _, c := range caps {
		set[c] = true
	}
	return model.Actor{ID: "u-1", Role: "project_manager", TenantID: "tenant-1", Capabilities: set}
}

func seedTask(t *testing.T, s *Service, projectID, taskID string, dur time.Duration) model.Task {
	t.Helper()
	task, err := s.CreateTask(context.Background(), model.Task{
		ID:                taskID,
		ProjectID:         projectID,
		Name:              "task " + taskID,
		EstimatedDuration: dur,
	})
	if err != nil {
		t.Fatalf("CreateTask(%s): %v", taskID, err)
	}
	return task
}

func addEdge(t *testing.T, s *Service, projectID, pred, succ string, depType model.DependencyType, lag time.Duration) model.Dependency {
	t.Helper()
	dep, err := s.AddDependency(context.Background(), scheduler(model.CapScheduleEdit), AddDependencyRequest{
		ProjectID:     projectID,
		PredecessorID: pred,
		SuccessorID:   succ,
		Type:          string(depType),
		Lag:           lag,
	})
	if err != nil {
		t.Fatalf("AddDependency(%s -> %s): %v", pred, succ, err)
	}
	return dep
}

func TestAddDependency(t *testing.T) {
	ctx := context.Background()
	svc, auditStore := newTestService(t, nil)
	seedTask(t, svc, "p1", "a", time.Hour)
	seedTask(t, svc, "p1", "b", time.Hour)

	dep := addEdge(t, svc, "p1", "a", "b", model.FinishToStart, 0)
	if dep.ID == "" || dep.CreatedBy != "u-1" {
		t.Errorf("unexpected dependency %+v", dep)
	}

	entries, err := auditStore.ByTask(ctx, "b")
	if err != nil {
		t.Fatalf("ByTask: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != model.AuditDependencyAdded {
		t.Errorf("expected one dependency_added entry, got %+v", entries)
	}
}

func TestAddDependencyRejections(t *testing.T) {
	ctx := context.Background()
	svc, auditStore := newTestService(t, nil)
	seedTask(t, svc, "p1", "a", time.Hour)
	seedTask(t, svc, "p1", "b", time.Hour)
	seedTask(t, svc, "p1", "c", time.Hour)
	seedTask(t, svc, "p2", "z", time.Hour)
	addEdge(t, svc, "p1", "a", "b", model.FinishToStart, 0)
	addEdge(t, svc, "p1", "b", "c", model.StartToStart, 0)

	cases := []struct {
		name     string
		actor    model.Actor
		req      AddDependencyRequest
		wantCode string
	}{
		{
			name:     "self dependency",
			actor:    scheduler(model.CapScheduleEdit),
			req:      AddDependencyRequest{ProjectID: "p1", PredecessorID: "a", SuccessorID: "a", Type: "finish_to_start"},
			wantCode: model.ErrSelfDependency,
		},
		{
			name:     "duplicate pair regardless of type",
			actor:    scheduler(model.CapScheduleEdit),
			req:      AddDependencyRequest{ProjectID: "p1", PredecessorID: "a", SuccessorID: "b", Type: "start_to_start"},
			wantCode: model.ErrDuplicateDependency,
		},
		{
			name:     "invalid type",
			actor:    scheduler(model.CapScheduleEdit),
			req:      AddDependencyRequest{ProjectID: "p1", PredecessorID: "a", SuccessorID: "c", Type: "after"},
			wantCode: model.ErrInvalidDependencyType,
		},
		{
			name:     "two-edge cycle",
			actor:    scheduler(model.CapScheduleEdit),
			req:      AddDependencyRequest{ProjectID: "p1", PredecessorID: "b", SuccessorID: "a", Type: "finish_to_start"},
			wantCode: model.ErrCircularDependency,
		},
		{
			name:     "longer cycle",
			actor:    scheduler(model.CapScheduleEdit),
			req:      AddDependencyRequest{ProjectID: "p1", PredecessorID: "c", SuccessorID: "a", Type: "finish_to_start"},
			wantCode: model.ErrCircularDependency,
		},
		{
			name:     "unknown task",
			actor:    scheduler(model.CapScheduleEdit),
			req:      AddDependencyRequest{ProjectID: "p1", PredecessorID: "a", SuccessorID: "ghost", Type: "finish_to_start"},
			wantCode: model.ErrNotFound,
		},
		{
			name:     "cross project task",
			actor:    scheduler(model.CapScheduleEdit),
			req:      AddDependencyRequest{ProjectID: "p1", PredecessorID: "a", SuccessorID: "z", Type: "finish_to_start"},
			wantCode: model.ErrBadRequest,
		},
		{
			name:     "missing capability",
			actor:    scheduler(),
			req:      AddDependencyRequest{ProjectID: "p1", PredecessorID: "a", SuccessorID: "c", Type: "finish_to_start"},
			wantCode: model.ErrForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddDependency(ctx, tc.actor, tc.req)
			if got := model.CodeOf(err); got != tc.wantCode {
				t.Errorf("got code %q (err %v), want %q", got, err, tc.wantCode)
			}
		})
	}

	// Only the two seeded inserts were audited; rejections write nothing.
	if got := auditStore.Len(); got != 2 {
		t.Errorf("audit trail has %d entries, want 2", got)
	}
}

func TestRemoveDependency(t *testing.T) {
	ctx := context.Background()
	svc, auditStore := newTestService(t, nil)
	seedTask(t, svc, "p1", "a", time.Hour)
	seedTask(t, svc, "p1", "b", time.Hour)
	dep := addEdge(t, svc, "p1", "a", "b", model.FinishToStart, 0)

	if err := svc.RemoveDependency(ctx, scheduler(model.CapScheduleEdit), dep.ID); err != nil {
		t.Fatalf("RemoveDependency: %v", err)
	}
	deps, err := svc.Dependencies(ctx, "p1")
	if err != nil {
		t.Fatalf("Dependencies: %v", err)
	}
	if len(deps) != 0 {
		t.Errorf("expected no dependencies after removal, got %d", len(deps))
	}

	entries, err := auditStore.ByTask(ctx, "b")
	if err != nil {
		t.Fatalf("ByTask: %v", err)
	}
	if len(entries) != 2 || entries[1].Kind != model.AuditDependencyRemoved {
		t.Errorf("expected add then remove entries, got %+v", entries)
	}

	// Removal frees the pair for re-insertion, including in the reverse
	// direction.
	addEdge(t, svc, "p1", "b", "a", model.FinishToStart, 0)

	err = svc.RemoveDependency(ctx, scheduler(model.CapScheduleEdit), dep.ID)
	if got := model.CodeOf(err); got != model.ErrNotFound {
		t.Errorf("second removal: got code %q, want NOT_FOUND", got)
	}
}

// TestAcceptedGraphStaysAcyclic generates random insert attempts and checks
// that every accepted edge set remains a DAG: the topological sort must always
// place all tasks.
func TestAcceptedGraphStaysAcyclic(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	svc, _ := newTestService(t, nil)

	const taskCount = 12
	var tasks []model.Task
	for i := 0; i < taskCount; i++ {
		tasks = append(tasks, seedTask(t, svc, "p1", fmt.Sprintf("t%02d", i), time.Hour))
	}

	accepted := 0
	for attempt := 0; attempt < 300; attempt++ {
		pred := tasks[rng.Intn(taskCount)].ID
		succ := tasks[rng.Intn(taskCount)].ID
		_, err := svc.AddDependency(ctx, scheduler(model.CapScheduleEdit), AddDependencyRequest{
			ProjectID:     "p1",
			PredecessorID: pred,
			SuccessorID:   succ,
			Type:          string(model.FinishToStart),
		})
		switch model.CodeOf(err) {
		case "":
			accepted++
		case model.ErrSelfDependency, model.ErrDuplicateDependency, model.ErrCircularDependency:
		default:
			t.Fatalf("attempt %d (%s -> %s): unexpected error %v", attempt, pred, succ, err)
		}

		deps, err := svc.Dependencies(ctx, "p1")
		if err != nil {
			t.Fatalf("Dependencies: %v", err)
		}
		if _, err := topoOrder(tasks, deps); err != nil {
			t.Fatalf("graph became cyclic after attempt %d (%s -> %s): %v", attempt, pred, succ, err)
		}
	}
	if accepted == 0 {
		t.Fatal("no edges were accepted; generator is broken")
	}
}

func TestStartAndCompleteTask(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, func() time.Time { return now })
	seedTask(t, svc, "p1", "a", time.Hour)
	seedTask(t, svc, "p1", "b", time.Hour)
	addEdge(t, svc, "p1", "a", "b", model.FinishToStart, 0)
	actor := scheduler(model.CapScheduleEdit)

	if _, err := svc.StartTask(ctx, actor, "b"); model.CodeOf(err) != model.ErrTaskBlocked {
		t.Fatalf("starting blocked task: got %v, want TASK_BLOCKED", err)
	}

	started, err := svc.StartTask(ctx, actor, "a")
	if err != nil {
		t.Fatalf("StartTask(a): %v", err)
	}
	if started.Status != model.TaskInProgress || !started.Started() {
		t.Errorf("unexpected task after start: %+v", started)
	}
	if _, err := svc.StartTask(ctx, actor, "a"); model.CodeOf(err) != model.ErrConflict {
		t.Errorf("double start: got %v, want CONFLICT", err)
	}

	completed, newlyReady, err := svc.CompleteTask(ctx, actor, "a")
	if err != nil {
		t.Fatalf("CompleteTask(a): %v", err)
	}
	if completed.Status != model.TaskCompleted || completed.CompletedAt == nil {
		t.Errorf("unexpected task after completion: %+v", completed)
	}
	if len(newlyReady) != 1 || newlyReady[0] != "b" {
		t.Errorf("newly ready = %v, want [b]", newlyReady)
	}

	if _, err := svc.StartTask(ctx, actor, "b"); err != nil {
		t.Errorf("StartTask(b) after predecessor completed: %v", err)
	}
}
