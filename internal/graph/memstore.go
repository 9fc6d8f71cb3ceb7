package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sitehq/girder/internal/audit"
	"github.com/sitehq/girder/model"
)

// MemStore is an in-memory graph Store for tests and single-process
// deployments.
type MemStore struct {
	mu        sync.RWMutex
	tasks     map[string]model.Task
	deps      map[string]model.Dependency
	overrides map[string][]model.DependencyOverride // key: task ID, append order
	audit     *audit.MemStore
}

// NewMemStore creates an empty in-memory graph store writing audit entries
// to the given audit store.
func NewMemStore(auditStore *audit.MemStore) *MemStore {
	return &MemStore{
		tasks:     make(map[string]model.Task),
		deps:      make(map[string]model.Dependency),
		overrides: make(map[string][]model.DependencyOverride),
		audit:     auditStore,
	}
}

// PutTask inserts or replaces a task row.
func (s *MemStore) PutTask(_ context.Context, task model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

// GetTask retrieves a task by ID.
func (s *MemStore) GetTask(_ context.Context, taskID string) (model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return model.Task{}, model.NewNotFoundError(fmt.Sprintf("task %q not found", taskID))
	}
	return task, nil
}

// TasksByProject returns all tasks in a project, ordered by ID for
// deterministic iteration.
func (s *MemStore) TasksByProject(_ context.Context, projectID string) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Task
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddDependency inserts an edge and its audit entry.
func (s *MemStore) AddDependency(ctx context.Context, dep model.Dependency, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.deps[dep.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("dependency %q already exists", dep.ID))
	}
	s.deps[dep.ID] = dep
	return s.audit.Append(ctx, entry)
}

// GetDependency retrieves an edge by ID.
func (s *MemStore) GetDependency(_ context.Context, dependencyID string) (model.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dep, ok := s.deps[dependencyID]
	if !ok {
		return model.Dependency{}, model.NewNotFoundError(fmt.Sprintf("dependency %q not found", dependencyID))
	}
	return dep, nil
}

// RemoveDependency deletes an edge and appends its audit entry.
func (s *MemStore) RemoveDependency(ctx context.Context, dependencyID string, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deps[dependencyID]; !ok {
		return model.NewNotFoundError(fmt.Sprintf("dependency %q not found", dependencyID))
	}
	delete(s.deps, dependencyID)
	return s.audit.Append(ctx, entry)
}

// DependenciesByProject returns every edge in a project.
func (s *MemStore) DependenciesByProject(_ context.Context, projectID string) ([]model.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Dependency
	for _, d := range s.deps {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Incoming returns the edges whose successor is the given task.
func (s *MemStore) Incoming(_ context.Context, taskID string) ([]model.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Dependency
	for _, d := range s.deps {
		if d.SuccessorID == taskID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Outgoing returns the edges whose predecessor is the given task.
func (s *MemStore) Outgoing(_ context.Context, taskID string) ([]model.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Dependency
	for _, d := range s.deps {
		if d.PredecessorID == taskID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutOverride records an override and its audit entry. Overrides accumulate;
// earlier records are never mutated.
func (s *MemStore) PutOverride(ctx context.Context, override model.DependencyOverride, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.overrides[override.TaskID] = append(s.overrides[override.TaskID], override)
	return s.audit.Append(ctx, entry)
}

// ActiveOverride returns the most recent override for a task, if any.
func (s *MemStore) ActiveOverride(_ context.Context, taskID string) (model.DependencyOverride, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ovs := s.overrides[taskID]
	if len(ovs) == 0 {
		return model.DependencyOverride{}, false, nil
	}
	return ovs[len(ovs)-1], true, nil
}
