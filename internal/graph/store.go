package graph

import (
	"context"

	"github.com/sitehq/girder/model"
)

// Store persists tasks, typed dependency edges, and overrides for the
// dependency graph. Mutations that carry an audit entry must apply the
// mutation and the append as one logical unit.
//
// The store does not enforce acyclicity; the Service serializes mutations
// per project and runs the cycle check before every insert.
type Store interface {
	// PutTask inserts or replaces a task row.
	PutTask(ctx context.Context, task model.Task) error

	// GetTask retrieves a task by ID. Returns NOT_FOUND if absent.
	GetTask(ctx context.Context, taskID string) (model.Task, error)

	// TasksByProject returns all tasks in a project.
	TasksByProject(ctx context.Context, projectID string) ([]model.Task, error)

	// AddDependency inserts an edge and its audit entry.
	AddDependency(ctx context.Context, dep model.Dependency, entry model.AuditEntry) error

	// GetDependency retrieves an edge by ID. Returns NOT_FOUND if absent.
	GetDependency(ctx context.Context, dependencyID string) (model.Dependency, error)

	// RemoveDependency deletes an edge and appends its audit entry.
	// Returns NOT_FOUND if the edge does not exist.
	RemoveDependency(ctx context.Context, dependencyID string, entry model.AuditEntry) error

	// DependenciesByProject returns every edge in a project.
	DependenciesByProject(ctx context.Context, projectID string) ([]model.Dependency, error)

	// Incoming returns the edges whose successor is the given task.
	Incoming(ctx context.Context, taskID string) ([]model.Dependency, error)

	// Outgoing returns the edges whose predecessor is the given task.
	Outgoing(ctx context.Context, taskID string) ([]model.Dependency, error)

	// PutOverride records an override and its audit entry.
	PutOverride(ctx context.Context, override model.DependencyOverride, entry model.AuditEntry) error

	// ActiveOverride returns the most recent override for a task, if any.
	ActiveOverride(ctx context.Context, taskID string) (model.DependencyOverride, bool, error)
}
