// Package audit provides the engine's append-only audit trail. One stream
// covers workflow transitions, dependency-graph mutations, and overrides;
// entries are immutable once written and only this package's writers may
// append.
package audit

import (
	"context"

	"github.com/sitehq/girder/model"
)

// Store persists audit entries.
type Store interface {
	// Append adds an entry to the trail. Entries are never updated or
	// deleted afterwards.
	Append(ctx context.Context, entry model.AuditEntry) error

	// ByEntity returns all entries for a workflow instance, ordered by
	// timestamp ascending.
	ByEntity(ctx context.Context, entityType model.EntityType, entityID string) ([]model.AuditEntry, error)

	// ByTask returns all entries for a task, ordered by timestamp ascending.
	ByTask(ctx context.Context, taskID string) ([]model.AuditEntry, error)
}
