package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitehq/girder/internal/audit"
	"github.com/sitehq/girder/model"
)

// Clock supplies the current time. A seam so lag arithmetic is testable.
type Clock func() time.Time

// Service owns the task dependency graph of every project: edge mutations,
// blocking resolution, overrides, and critical-path calculation. Graph
// mutations within one project are serialized so the acyclicity check always
// runs against a consistent snapshot.
type Service struct {
	store  Store
	audit  audit.Store
	logger *zap.Logger
	clock  Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a graph service. A nil clock defaults to time.Now.
func NewService(store Store, auditStore audit.Store, logger *zap.Logger, clock Clock) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:  store,
		audit:  auditStore,
		logger: logger,
		clock:  clock,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[projectID] = lock
	}
	return lock
}

// CreateTask registers a task with the graph service.
func (s *Service) CreateTask(ctx context.Context, task model.Task) (model.Task, error) {
	if task.ProjectID == "" || task.Name == "" {
		return model.Task{}, model.NewBadRequestError("task project_id and name are required")
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = model.TaskPending
	}
	if err := s.store.PutTask(ctx, task); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

// GetTask retrieves a task by ID.
func (s *Service) GetTask(ctx context.Context, taskID string) (model.Task, error) {
	return s.store.GetTask(ctx, taskID)
}

// Dependencies lists every edge in a project.
func (s *Service) Dependencies(ctx context.Context, projectID string) ([]model.Dependency, error) {
	return s.store.DependenciesByProject(ctx, projectID)
}

// TaskAudit returns the audit trail touching a task, ordered by timestamp.
func (s *Service) TaskAudit(ctx context.Context, taskID string) ([]model.AuditEntry, error) {
	return s.audit.ByTask(ctx, taskID)
}

// AddDependencyRequest carries one edge-insert request.
type AddDependencyRequest struct {
	ProjectID     string
	PredecessorID string
	SuccessorID   string
	Type          string
	Lag           time.Duration
}

// AddDependency validates and inserts a typed edge. Rejections, in order:
// self-dependency, unknown or cross-project tasks, duplicate pair, invalid
// type, and any edge that would close a cycle. Acyclicity is enforced here,
// before insert; the graph is never repaired after the fact.
func (s *Service) AddDependency(ctx context.Context, actor model.Actor, req AddDependencyRequest) (model.Dependency, error) {
	if !actor.HasCapability(model.CapScheduleEdit) {
		return model.Dependency{}, model.NewForbiddenError(
			fmt.Sprintf("role %q cannot edit the schedule", actor.Role))
	}
	if req.PredecessorID == req.SuccessorID {
		return model.Dependency{}, model.NewSelfDependencyError(
			fmt.Sprintf("task %q cannot depend on itself", req.SuccessorID))
	}

	lock := s.projectLock(req.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	for _, taskID := range []string{req.PredecessorID, req.SuccessorID} {
		task, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return model.Dependency{}, err
		}
		if task.ProjectID != req.ProjectID {
			return model.Dependency{}, model.NewBadRequestError(
				fmt.Sprintf("task %q does not belong to project %q", taskID, req.ProjectID))
		}
	}

	deps, err := s.store.DependenciesByProject(ctx, req.ProjectID)
	if err != nil {
		return model.Dependency{}, err
	}
	for _, d := range deps {
		if d.PredecessorID == req.PredecessorID && d.SuccessorID == req.SuccessorID {
			return model.Dependency{}, model.NewDuplicateDependencyError(
				fmt.Sprintf("dependency %q -> %q already exists", req.PredecessorID, req.SuccessorID))
		}
	}

	depType, err := model.ParseDependencyType(req.Type)
	if err != nil {
		return model.Dependency{}, err
	}

	if path := findCyclePath(buildAdjacency(deps), req.PredecessorID, req.SuccessorID); path != nil {
		return model.Dependency{}, cycleError(path)
	}

	now := s.clock()
	dep := model.Dependency{
		ID:            uuid.NewString(),
		ProjectID:     req.ProjectID,
		PredecessorID: req.PredecessorID,
		SuccessorID:   req.SuccessorID,
		Type:          depType,
		Lag:           req.Lag,
		CreatedBy:     actor.ID,
		CreatedAt:     now,
	}
	entry := model.AuditEntry{
		ID:        uuid.NewString(),
		Kind:      model.AuditDependencyAdded,
		TaskID:    req.SuccessorID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Reason:    fmt.Sprintf("added %s dependency on %s", depType, req.PredecessorID),
		Timestamp: now,
	}
	if err := s.store.AddDependency(ctx, dep, entry); err != nil {
		return model.Dependency{}, err
	}

	s.logger.Info("dependency added",
		zap.String("dependency_id", dep.ID),
		zap.String("project_id", dep.ProjectID),
		zap.String("predecessor_id", dep.PredecessorID),
		zap.String("successor_id", dep.SuccessorID),
		zap.String("type", string(dep.Type)),
		zap.Duration("lag", dep.Lag),
		zap.String("actor_id", actor.ID),
	)
	return dep, nil
}

// RemoveDependency deletes an edge. Removal can only relax the graph, so no
// structural check is needed, but the removal is still audited.
func (s *Service) RemoveDependency(ctx context.Context, actor model.Actor, dependencyID string) error {
	if !actor.HasCapability(model.CapScheduleEdit) {
		return model.NewForbiddenError(
			fmt.Sprintf("role %q cannot edit the schedule", actor.Role))
	}

	dep, err := s.store.GetDependency(ctx, dependencyID)
	if err != nil {
		return err
	}

	lock := s.projectLock(dep.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	entry := model.AuditEntry{
		ID:        uuid.NewString(),
		Kind:      model.AuditDependencyRemoved,
		TaskID:    dep.SuccessorID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Reason:    fmt.Sprintf("removed %s dependency on %s", dep.Type, dep.PredecessorID),
		Timestamp: s.clock(),
	}
	if err := s.store.RemoveDependency(ctx, dependencyID, entry); err != nil {
		return err
	}

	s.logger.Info("dependency removed",
		zap.String("dependency_id", dependencyID),
		zap.String("project_id", dep.ProjectID),
		zap.String("actor_id", actor.ID),
	)
	return nil
}

// StartTask moves a pending task to in_progress, refusing while any
// start-gating dependency is unsatisfied and no override is in effect.
func (s *Service) StartTask(ctx context.Context, actor model.Actor, taskID string) (model.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if task.Status != model.TaskPending {
		return model.Task{}, model.NewConflictError(
			fmt.Sprintf("task %q is %s, not pending", taskID, task.Status))
	}

	readiness, err := s.Readiness(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if !readiness.Ready {
		return model.Task{}, blockedError(taskID, readiness.Reasons)
	}

	now := s.clock()
	task.Status = model.TaskInProgress
	task.ActualStart = &now
	if err := s.store.PutTask(ctx, task); err != nil {
		return model.Task{}, err
	}

	s.logger.Info("task started",
		zap.String("task_id", taskID),
		zap.String("project_id", task.ProjectID),
		zap.String("actor_id", actor.ID),
		zap.Bool("overridden", readiness.Overridden),
	)
	return task, nil
}

// CompleteTask moves an in_progress task to completed, refusing while any
// finish-gating dependency is unsatisfied and no override is in effect. It
// returns the direct successors that became ready as a result.
func (s *Service) CompleteTask(ctx context.Context, actor model.Actor, taskID string) (model.Task, []string, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return model.Task{}, nil, err
	}
	if task.Status != model.TaskInProgress {
		return model.Task{}, nil, model.NewConflictError(
			fmt.Sprintf("task %q is %s, not in_progress", taskID, task.Status))
	}

	finish, err := s.CanFinish(ctx, taskID)
	if err != nil {
		return model.Task{}, nil, err
	}
	if !finish.Ready {
		return model.Task{}, nil, blockedError(taskID, finish.Reasons)
	}

	now := s.clock()
	task.Status = model.TaskCompleted
	task.CompletedAt = &now
	if err := s.store.PutTask(ctx, task); err != nil {
		return model.Task{}, nil, err
	}

	// One-hop recheck: readiness is derived, so nothing is persisted here,
	// but callers and operators want to know what just unblocked.
	newlyReady, err := s.recheckSuccessors(ctx, taskID)
	if err != nil {
		return model.Task{}, nil, err
	}

	s.logger.Info("task completed",
		zap.String("task_id", taskID),
		zap.String("project_id", task.ProjectID),
		zap.String("actor_id", actor.ID),
		zap.Strings("newly_ready", newlyReady),
	)
	return task, newlyReady, nil
}

func (s *Service) recheckSuccessors(ctx context.Context, taskID string) ([]string, error) {
	outgoing, err := s.store.Outgoing(ctx, taskID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(outgoing))
	var ready []string
	for _, dep := range outgoing {
		if seen[dep.SuccessorID] {
			continue
		}
		seen[dep.SuccessorID] = true

		succ, err := s.store.GetTask(ctx, dep.SuccessorID)
		if err != nil {
			return nil, err
		}
		if succ.Status != model.TaskPending {
			continue
		}
		readiness, err := s.Readiness(ctx, dep.SuccessorID)
		if err != nil {
			return nil, err
		}
		if readiness.Ready {
			ready = append(ready, dep.SuccessorID)
		}
	}
	return ready, nil
}
