package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitehq/girder/model"
)

// GrantOverride exempts a task from the blocking veto without touching any
// dependency edge. A non-empty reason is mandatory; nothing is recorded when
// the request is rejected. Granting an override on a task that is not
// currently blocked is permitted and still recorded, since the exemption may
// matter later.
func (s *Service) GrantOverride(ctx context.Context, actor model.Actor, taskID, reason string) (model.DependencyOverride, error) {
	if strings.TrimSpace(reason) == "" {
		return model.DependencyOverride{}, model.NewReasonRequiredError(
			"an override requires a non-empty reason")
	}
	if !actor.HasCapability(model.CapScheduleOverride) {
		return model.DependencyOverride{}, model.NewForbiddenError(
			fmt.Sprintf("role %q cannot override dependencies", actor.Role))
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return model.DependencyOverride{}, err
	}

	// Serialized with the other graph mutations of the project so the
	// override lands against a settled edge set.
	lock := s.projectLock(task.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock()
	override := model.DependencyOverride{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Reason:    reason,
		Timestamp: now,
	}
	entry := model.AuditEntry{
		ID:        uuid.NewString(),
		Kind:      model.AuditOverrideGranted,
		TaskID:    taskID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Reason:    reason,
		Timestamp: now,
	}
	if err := s.store.PutOverride(ctx, override, entry); err != nil {
		return model.DependencyOverride{}, err
	}

	s.logger.Info("dependency override granted",
		zap.String("task_id", taskID),
		zap.String("project_id", task.ProjectID),
		zap.String("actor_id", actor.ID),
		zap.String("actor_role", actor.Role),
	)
	return override, nil
}
