package model

import "time"

// WorkflowInstance tracks the current workflow state of one business record.
// The engine owns CurrentState and Version; the record payload itself lives
// with the owning business-record flow and is referenced by ID only.
// Instances are created at entity creation time and never hard-deleted.
type WorkflowInstance struct {
	EntityType   EntityType `json:"entity_type"`
	EntityID     string     `json:"entity_id"`
	CurrentState string     `json:"current_state"`
	Version      int        `json:"version"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Audit entry kinds.
const (
	AuditTransition        = "transition"
	AuditDependencyAdded   = "dependency_added"
	AuditDependencyRemoved = "dependency_removed"
	AuditOverrideGranted   = "override_granted"
)

// AuditEntry is one append-only record in the engine's audit trail. A single
// stream covers workflow transitions, dependency-graph mutations, and
// overrides; EntityType/EntityID are set for transition entries, TaskID for
// graph and override entries. Entries are immutable once written.
type AuditEntry struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	EntityType EntityType `json:"entity_type,omitempty"`
	EntityID   string     `json:"entity_id,omitempty"`
	TaskID     string     `json:"task_id,omitempty"`
	FromState  string     `json:"from_state,omitempty"`
	ToState    string     `json:"to_state,omitempty"`
	ActorID    string     `json:"actor_id"`
	ActorRole  string     `json:"actor_role"`
	Reason     string     `json:"reason,omitempty"`
	// InstanceVersion is the instance version before the transition was
	// applied. Zero for non-transition entries.
	InstanceVersion int       `json:"instance_version,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
