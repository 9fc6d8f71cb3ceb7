package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/sitehq/girder/model"
)

// MemStore is an in-memory audit Store used in tests and single-process
// deployments.
type MemStore struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

// NewMemStore creates an empty in-memory audit store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Append adds an entry to the trail.
func (s *MemStore) Append(_ context.Context, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// ByEntity returns all entries for a workflow instance, ordered by timestamp.
func (s *MemStore) ByEntity(_ context.Context, entityType model.EntityType, entityID string) ([]model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AuditEntry
	for _, e := range s.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	sortByTimestamp(out)
	return out, nil
}

// ByTask returns all entries for a task, ordered by timestamp.
func (s *MemStore) ByTask(_ context.Context, taskID string) ([]model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AuditEntry
	for _, e := range s.entries {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	sortByTimestamp(out)
	return out, nil
}

// Len returns the total number of entries. For testing.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func sortByTimestamp(entries []model.AuditEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}
