package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitehq/girder/internal/audit"
	"github.com/sitehq/girder/model"
)

// PgStore is a PostgreSQL-backed graph Store using pgx/v5. Every mutating
// call commits the row change and its audit entry in one transaction.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL graph store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// HealthCheck pings the database, for the readiness endpoint.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PutTask inserts or replaces a task row.
func (s *PgStore) PutTask(ctx context.Context, task model.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (
			id, project_id, name, planned_start, planned_end,
			estimated_duration, status, actual_start, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			planned_start = EXCLUDED.planned_start,
			planned_end = EXCLUDED.planned_end,
			estimated_duration = EXCLUDED.estimated_duration,
			status = EXCLUDED.status,
			actual_start = EXCLUDED.actual_start,
			completed_at = EXCLUDED.completed_at`,
		task.ID, task.ProjectID, task.Name, task.PlannedStart, task.PlannedEnd,
		task.EstimatedDuration, string(task.Status), task.ActualStart, task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

const selectTaskSQL = `
	SELECT id, project_id, name, planned_start, planned_end,
	       estimated_duration, status, actual_start, completed_at
	FROM tasks`

// GetTask retrieves a task by ID.
func (s *PgStore) GetTask(ctx context.Context, taskID string) (model.Task, error) {
	row := s.pool.QueryRow(ctx, selectTaskSQL+` WHERE id = $1`, taskID)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Task{}, model.NewNotFoundError(fmt.Sprintf("task %q not found", taskID))
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// TasksByProject returns all tasks in a project.
func (s *PgStore) TasksByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	rows, err := s.pool.Query(ctx, selectTaskSQL+` WHERE project_id = $1 ORDER BY id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (model.Task, error) {
	var t model.Task
	var status string
	if err := row.Scan(
		&t.ID, &t.ProjectID, &t.Name, &t.PlannedStart, &t.PlannedEnd,
		&t.EstimatedDuration, &status, &t.ActualStart, &t.CompletedAt,
	); err != nil {
		return model.Task{}, err
	}
	t.Status = model.TaskStatus(status)
	return t, nil
}

// AddDependency inserts an edge and its audit entry in one transaction.
func (s *PgStore) AddDependency(ctx context.Context, dep model.Dependency, entry model.AuditEntry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO task_dependencies (
				id, project_id, predecessor_task_id, successor_task_id,
				type, lag, created_by, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			dep.ID, dep.ProjectID, dep.PredecessorID, dep.SuccessorID,
			string(dep.Type), dep.Lag, dep.CreatedBy, dep.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert dependency: %w", err)
		}
		return audit.AppendTx(ctx, tx, entry)
	})
}

const selectDependencySQL = `
	SELECT id, project_id, predecessor_task_id, successor_task_id,
	       type, lag, created_by, created_at
	FROM task_dependencies`

// GetDependency retrieves an edge by ID.
func (s *PgStore) GetDependency(ctx context.Context, dependencyID string) (model.Dependency, error) {
	row := s.pool.QueryRow(ctx, selectDependencySQL+` WHERE id = $1`, dependencyID)

	dep, err := scanDependency(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Dependency{}, model.NewNotFoundError(fmt.Sprintf("dependency %q not found", dependencyID))
	}
	if err != nil {
		return model.Dependency{}, fmt.Errorf("get dependency: %w", err)
	}
	return dep, nil
}

// RemoveDependency deletes an edge and appends its audit entry in one
// transaction.
func (s *PgStore) RemoveDependency(ctx context.Context, dependencyID string, entry model.AuditEntry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM task_dependencies WHERE id = $1`, dependencyID)
		if err != nil {
			return fmt.Errorf("delete dependency: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.NewNotFoundError(fmt.Sprintf("dependency %q not found", dependencyID))
		}
		return audit.AppendTx(ctx, tx, entry)
	})
}

// DependenciesByProject returns every edge in a project.
func (s *PgStore) DependenciesByProject(ctx context.Context, projectID string) ([]model.Dependency, error) {
	return s.queryDependencies(ctx, selectDependencySQL+` WHERE project_id = $1 ORDER BY id ASC`, projectID)
}

// Incoming returns the edges whose successor is the given task.
func (s *PgStore) Incoming(ctx context.Context, taskID string) ([]model.Dependency, error) {
	return s.queryDependencies(ctx, selectDependencySQL+` WHERE successor_task_id = $1 ORDER BY id ASC`, taskID)
}

// Outgoing returns the edges whose predecessor is the given task.
func (s *PgStore) Outgoing(ctx context.Context, taskID string) ([]model.Dependency, error) {
	return s.queryDependencies(ctx, selectDependencySQL+` WHERE predecessor_task_id = $1 ORDER BY id ASC`, taskID)
}

func (s *PgStore) queryDependencies(ctx context.Context, sql string, args ...any) ([]model.Dependency, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query dependencies: %w", err)
	}
	defer rows.Close()

	var deps []model.Dependency
	for rows.Next() {
		dep, err := scanDependency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

func scanDependency(row pgx.Row) (model.Dependency, error) {
	var d model.Dependency
	var depType string
	if err := row.Scan(
		&d.ID, &d.ProjectID, &d.PredecessorID, &d.SuccessorID,
		&depType, &d.Lag, &d.CreatedBy, &d.CreatedAt,
	); err != nil {
		return model.Dependency{}, err
	}
	d.Type = model.DependencyType(depType)
	return d, nil
}

// PutOverride records an override and its audit entry in one transaction.
func (s *PgStore) PutOverride(ctx context.Context, override model.DependencyOverride, entry model.AuditEntry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO dependency_overrides (
				id, task_id, actor_id, actor_role, reason, created_at
			) VALUES ($1, $2, $3, $4, $5, $6)`,
			override.ID, override.TaskID, override.ActorID, override.ActorRole,
			override.Reason, override.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert override: %w", err)
		}
		return audit.AppendTx(ctx, tx, entry)
	})
}

// ActiveOverride returns the most recent override for a task, if any.
func (s *PgStore) ActiveOverride(ctx context.Context, taskID string) (model.DependencyOverride, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, task_id, actor_id, actor_role, reason, created_at
		FROM dependency_overrides
		WHERE task_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		taskID,
	)

	var o model.DependencyOverride
	err := row.Scan(&o.ID, &o.TaskID, &o.ActorID, &o.ActorRole, &o.Reason, &o.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DependencyOverride{}, false, nil
	}
	if err != nil {
		return model.DependencyOverride{}, false, fmt.Errorf("get override: %w", err)
	}
	return o, true, nil
}

func (s *PgStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
