// Package workflow applies role-gated, guard-gated state transitions to
// workflow instances under optimistic concurrency, with a mandatory audit
// record per transition.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitehq/girder/internal/audit"
	"github.com/sitehq/girder/internal/definition"
	"github.com/sitehq/girder/internal/guard"
	"github.com/sitehq/girder/model"
)

// Notifier is invoked after a transition has committed. Delivery is
// fire-and-forget and outside the transition's atomicity unit.
type Notifier interface {
	TransitionApplied(ctx context.Context, inst model.WorkflowInstance, entry model.AuditEntry)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

// TransitionApplied implements Notifier.
func (NopNotifier) TransitionApplied(context.Context, model.WorkflowInstance, model.AuditEntry) {}

// TransitionRequest describes one requested state change.
type TransitionRequest struct {
	EntityType model.EntityType
	EntityID   string
	ToState    string
	// ExpectedVersion is the instance version the caller read. A stale
	// value fails the request with CONFLICT; the caller re-reads and
	// retries.
	ExpectedVersion int
	Reason          string
	// Attributes are the externally-supplied entity attributes guard
	// predicates evaluate against.
	Attributes map[string]any
}

// Executor validates and applies transitions. It is stateless between calls;
// all state lives in the instance store and audit log.
type Executor struct {
	registry *definition.Registry
	store    InstanceStore
	audit    audit.Store
	guards   *guard.Engine
	notifier Notifier
	logger   *zap.Logger
}

// NewExecutor creates a transition executor.
func NewExecutor(
	registry *definition.Registry,
	store InstanceStore,
	auditStore audit.Store,
	guards *guard.Engine,
	notifier Notifier,
	logger *zap.Logger,
) *Executor {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Executor{
		registry: registry,
		store:    store,
		audit:    auditStore,
		guards:   guards,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateInstance registers a new workflow instance in the definition's
// initial state. Called by the owning business-record flow at entity
// creation time.
func (e *Executor) CreateInstance(ctx context.Context, entityType model.EntityType, entityID string) (model.WorkflowInstance, error) {
	def, err := e.registry.Get(entityType)
	if err != nil {
		return model.WorkflowInstance{}, err
	}

	inst := model.WorkflowInstance{
		EntityType:   entityType,
		EntityID:     entityID,
		CurrentState: def.InitialState(),
		Version:      1,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := e.store.Create(ctx, inst); err != nil {
		return model.WorkflowInstance{}, err
	}
	return inst, nil
}

// Transition validates and applies one requested transition:
//
//  1. load the instance (NOT_FOUND if absent)
//  2. load the entity type's definition (UNKNOWN_ENTITY_TYPE)
//  3. find the (current -> requested) transition (ILLEGAL_TRANSITION)
//  4. check the actor's transition capability and role (FORBIDDEN)
//  5. evaluate the guard against the supplied attributes (GUARD_NOT_SATISFIED)
//  6. atomically: version check-and-increment plus exactly one audit append
//     (CONFLICT on version mismatch; the caller re-reads and retries)
//
// All validation happens before any write; no partial state is observable.
func (e *Executor) Transition(ctx context.Context, actor model.Actor, req TransitionRequest) (model.WorkflowInstance, error) {
	inst, err := e.store.Get(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return model.WorkflowInstance{}, err
	}

	def, err := e.registry.Get(req.EntityType)
	if err != nil {
		return model.WorkflowInstance{}, err
	}

	tr, ok := def.FindTransition(inst.CurrentState, req.ToState)
	if !ok {
		return model.WorkflowInstance{}, model.NewIllegalTransitionError(
			fmt.Sprintf("no transition %s -> %s defined for %s", inst.CurrentState, req.ToState, req.EntityType),
		)
	}

	if !actor.Capabilities.Has(model.CapWorkflowTransition) {
		return model.WorkflowInstance{}, model.NewForbiddenError(
			fmt.Sprintf("role %q lacks the %s capability", actor.Role, model.CapWorkflowTransition),
		)
	}

	if !tr.AllowsRole(actor.Role) {
		return model.WorkflowInstance{}, model.NewForbiddenError(
			fmt.Sprintf("role %q may not move %s from %s to %s", actor.Role, req.EntityType, tr.From, tr.To),
		)
	}

	if err := e.guards.Evaluate(tr.Guard, req.Attributes); err != nil {
		return model.WorkflowInstance{}, err
	}

	// Fail fast on a stale read before touching the store; the store
	// repeats the check atomically at commit.
	if req.ExpectedVersion != inst.Version {
		return model.WorkflowInstance{}, model.NewConflictError(
			fmt.Sprintf("instance version is %d, request expected %d", inst.Version, req.ExpectedVersion),
		)
	}

	entry := model.AuditEntry{
		ID:              uuid.New().String(),
		Kind:            model.AuditTransition,
		EntityType:      req.EntityType,
		EntityID:        req.EntityID,
		FromState:       inst.CurrentState,
		ToState:         req.ToState,
		ActorID:         actor.ID,
		ActorRole:       actor.Role,
		Reason:          req.Reason,
		InstanceVersion: inst.Version,
		Timestamp:       time.Now().UTC(),
	}

	inst.CurrentState = req.ToState
	if err := e.store.UpdateWithAudit(ctx, inst, entry); err != nil {
		return model.WorkflowInstance{}, err
	}
	inst.Version++
	inst.UpdatedAt = entry.Timestamp

	e.logger.Info("workflow transition applied",
		zap.String("entity_type", string(req.EntityType)),
		zap.String("entity_id", req.EntityID),
		zap.String("from", entry.FromState),
		zap.String("to", entry.ToState),
		zap.String("actor_id", actor.ID),
		zap.String("actor_role", actor.Role),
	)

	// Outside the atomicity unit: a lost notification never rolls back a
	// committed transition.
	go e.notifier.TransitionApplied(context.WithoutCancel(ctx), inst, entry)

	return inst, nil
}

// Get returns the current workflow instance for an entity.
func (e *Executor) Get(ctx context.Context, entityType model.EntityType, entityID string) (model.WorkflowInstance, error) {
	return e.store.Get(ctx, entityType, entityID)
}

// AuditTrail returns the ordered audit entries for an entity.
func (e *Executor) AuditTrail(ctx context.Context, entityType model.EntityType, entityID string) ([]model.AuditEntry, error) {
	if _, err := e.store.Get(ctx, entityType, entityID); err != nil {
		return nil, err
	}
	return e.audit.ByEntity(ctx, entityType, entityID)
}
