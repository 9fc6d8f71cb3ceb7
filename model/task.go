package model

import "time"

// TaskStatus is the persisted lifecycle status of a task. "ready" and
// "blocked" are deliberately absent: readiness is a derived, on-demand value
// computed by the blocking resolver, never stored, so it can't go stale.
type TaskStatus string

// Task statuses.
const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// Task is one schedulable unit of work within a project. The engine owns the
// dependency structure around tasks; planning dates and durations are
// supplied by the owning project flow.
type Task struct {
	ID                string        `json:"id"`
	ProjectID         string        `json:"project_id"`
	Name              string        `json:"name"`
	PlannedStart      time.Time     `json:"planned_start"`
	PlannedEnd        time.Time     `json:"planned_end"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	Status            TaskStatus    `json:"status"`
	ActualStart       *time.Time    `json:"actual_start,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
}

// Started returns true once the task has an actual start time.
func (t Task) Started() bool {
	return t.ActualStart != nil
}

// DependencyType is one of the four classical precedence relations.
type DependencyType string

// Precedence relations.
const (
	FinishToStart  DependencyType = "finish_to_start"
	StartToStart   DependencyType = "start_to_start"
	FinishToFinish DependencyType = "finish_to_finish"
	StartToFinish  DependencyType = "start_to_finish"
)

// ParseDependencyType validates a raw string against the four defined kinds.
func ParseDependencyType(raw string) (DependencyType, error) {
	switch DependencyType(raw) {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return DependencyType(raw), nil
	}
	return "", NewInvalidDependencyTypeError("invalid dependency type " + raw)
}

// GatesStart returns true for relations that constrain when the successor may
// start (FS, SS). The remaining relations (FF, SF) constrain when the
// successor may finish.
func (d DependencyType) GatesStart() bool {
	return d == FinishToStart || d == StartToStart
}

// Dependency is a directed, typed, lagged edge between two tasks of the same
// project. Lag is a signed offset applied on top of the precedence relation.
// The set of all dependencies in a project must remain acyclic at every point
// in time; this is enforced before insert, never repaired after.
type Dependency struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id"`
	PredecessorID string         `json:"predecessor_task_id"`
	SuccessorID   string         `json:"successor_task_id"`
	Type          DependencyType `json:"type"`
	Lag           time.Duration  `json:"lag"`
	CreatedBy     string         `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
}

// DependencyOverride exempts a task from the blocking resolver's veto without
// removing or mutating any dependency edge. It is an additive audit fact:
// repeated overrides append records rather than mutating earlier ones, which
// keeps a future revocation flow possible without restructuring the model.
type DependencyOverride struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	ActorID   string    `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// CPMResult holds the critical-path quantities for one task, expressed as
// offsets from the project start. Tasks with zero float form the critical
// path.
type CPMResult struct {
	EarlyStart  time.Duration `json:"early_start"`
	EarlyFinish time.Duration `json:"early_finish"`
	LateStart   time.Duration `json:"late_start"`
	LateFinish  time.Duration `json:"late_finish"`
	Float       time.Duration `json:"float"`
}
