package workflow

import (
	"context"

	"github.com/sitehq/girder/model"
)

// InstanceStore persists workflow instances. Implementations must make
// UpdateWithAudit a single logical unit: either the state change and its
// audit entry are both visible, or neither is.
type InstanceStore interface {
	// Create persists a new instance. Returns CONFLICT if an instance
	// already exists for the (entity_type, entity_id) pair.
	Create(ctx context.Context, inst model.WorkflowInstance) error

	// Get retrieves an instance by entity type and ID. Returns NOT_FOUND
	// if absent.
	Get(ctx context.Context, entityType model.EntityType, entityID string) (model.WorkflowInstance, error)

	// UpdateWithAudit applies a version-checked state update and appends the
	// transition's audit entry atomically. inst.Version carries the expected
	// current version; the store increments it on success and returns
	// CONFLICT if the stored version differs.
	UpdateWithAudit(ctx context.Context, inst model.WorkflowInstance, entry model.AuditEntry) error
}
