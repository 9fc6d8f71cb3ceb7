package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sitehq/girder/internal/audit"
	"github.com/sitehq/girder/model"
)

func instanceKey(entityType model.EntityType, entityID string) string {
	return string(entityType) + "/" + entityID
}

// MemInstanceStore is an in-memory InstanceStore for tests and
// single-process deployments. The audit append in UpdateWithAudit happens
// under the same lock section as the version check, so the two are one unit.
type MemInstanceStore struct {
	mu        sync.RWMutex
	instances map[string]model.WorkflowInstance
	audit     *audit.MemStore
}

// NewMemInstanceStore creates an in-memory instance store writing audit
// entries to the given audit store.
func NewMemInstanceStore(auditStore *audit.MemStore) *MemInstanceStore {
	return &MemInstanceStore{
		instances: make(map[string]model.WorkflowInstance),
		audit:     auditStore,
	}
}

// Create persists a new instance.
func (s *MemInstanceStore) Create(_ context.Context, inst model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := instanceKey(inst.EntityType, inst.EntityID)
	if _, exists := s.instances[key]; exists {
		return model.NewConflictError(
			fmt.Sprintf("workflow instance for %s %q already exists", inst.EntityType, inst.EntityID),
		)
	}
	s.instances[key] = inst
	return nil
}

// Get retrieves an instance by entity type and ID.
func (s *MemInstanceStore) Get(_ context.Context, entityType model.EntityType, entityID string) (model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, exists := s.instances[instanceKey(entityType, entityID)]
	if !exists {
		return model.WorkflowInstance{}, model.NewNotFoundError(
			fmt.Sprintf("workflow instance for %s %q not found", entityType, entityID),
		)
	}
	return inst, nil
}

// UpdateWithAudit applies a version-checked update and appends the audit
// entry as one unit.
func (s *MemInstanceStore) UpdateWithAudit(ctx context.Context, inst model.WorkflowInstance, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := instanceKey(inst.EntityType, inst.EntityID)
	existing, exists := s.instances[key]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("workflow instance for %s %q not found", inst.EntityType, inst.EntityID),
		)
	}

	if existing.Version != inst.Version {
		return model.NewConflictError(
			fmt.Sprintf("workflow instance for %s %q version conflict (expected %d, stored %d)",
				inst.EntityType, inst.EntityID, inst.Version, existing.Version),
		)
	}

	inst.Version++
	inst.UpdatedAt = time.Now().UTC()
	s.instances[key] = inst

	return s.audit.Append(ctx, entry)
}

// Len returns the number of instances. For testing.
func (s *MemInstanceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}
