package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitehq/girder/internal/audit"
	"github.com/sitehq/girder/model"
)

// PgInstanceStore is a PostgreSQL-backed InstanceStore using pgx/v5.
// UpdateWithAudit runs the version-checked update and the audit insert in a
// single transaction.
type PgInstanceStore struct {
	pool *pgxpool.Pool
}

// NewPgInstanceStore creates a new PostgreSQL instance store.
func NewPgInstanceStore(pool *pgxpool.Pool) *PgInstanceStore {
	return &PgInstanceStore{pool: pool}
}

// HealthCheck pings the database, for the readiness endpoint.
func (s *PgInstanceStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create inserts a new workflow instance.
func (s *PgInstanceStore) Create(ctx context.Context, inst model.WorkflowInstance) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_instances (entity_type, entity_id, current_state, version, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(inst.EntityType), inst.EntityID, inst.CurrentState, inst.Version, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow instance: %w", err)
	}
	return nil
}

// Get retrieves an instance by entity type and ID.
func (s *PgInstanceStore) Get(ctx context.Context, entityType model.EntityType, entityID string) (model.WorkflowInstance, error) {
	var inst model.WorkflowInstance
	var et string

	err := s.pool.QueryRow(ctx, `
		SELECT entity_type, entity_id, current_state, version, updated_at
		FROM workflow_instances
		WHERE entity_type = $1 AND entity_id = $2`,
		string(entityType), entityID,
	).Scan(&et, &inst.EntityID, &inst.CurrentState, &inst.Version, &inst.UpdatedAt)
	if err == pgx.ErrNoRows {
		return model.WorkflowInstance{}, model.NewNotFoundError(
			fmt.Sprintf("workflow instance for %s %q not found", entityType, entityID),
		)
	}
	if err != nil {
		return model.WorkflowInstance{}, fmt.Errorf("query workflow instance: %w", err)
	}
	inst.EntityType = model.EntityType(et)
	return inst, nil
}

// UpdateWithAudit applies a version-checked update and the audit append in
// one transaction.
func (s *PgInstanceStore) UpdateWithAudit(ctx context.Context, inst model.WorkflowInstance, entry model.AuditEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE workflow_instances SET
			current_state = $1,
			version = $2,
			updated_at = $3
		WHERE entity_type = $4 AND entity_id = $5 AND version = $6`,
		inst.CurrentState, inst.Version+1, time.Now().UTC(),
		string(inst.EntityType), inst.EntityID, inst.Version,
	)
	if err != nil {
		return fmt.Errorf("update workflow instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("workflow instance for %s %q version conflict (expected %d)",
				inst.EntityType, inst.EntityID, inst.Version),
		)
	}

	if err := audit.AppendTx(ctx, tx, entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
