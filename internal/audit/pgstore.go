package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitehq/girder/model"
)

// PgStore is a PostgreSQL-backed audit Store using pgx/v5. Writers that need
// an audit append inside their own transaction (for example the instance
// store's transition commit) write to the same audit_log table via AppendTx.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL audit store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const insertEntrySQL = `
	INSERT INTO audit_log (
		id, kind, entity_type, entity_id, task_id,
		from_state, to_state, actor_id, actor_role, reason,
		instance_version, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Append adds an entry to the trail.
func (s *PgStore) Append(ctx context.Context, entry model.AuditEntry) error {
	_, err := s.pool.Exec(ctx, insertEntrySQL,
		entry.ID, entry.Kind, string(entry.EntityType), entry.EntityID, entry.TaskID,
		entry.FromState, entry.ToState, entry.ActorID, entry.ActorRole, entry.Reason,
		entry.InstanceVersion, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// AppendTx adds an entry within an existing transaction so a state mutation
// and its audit record commit as one unit.
func AppendTx(ctx context.Context, tx pgx.Tx, entry model.AuditEntry) error {
	_, err := tx.Exec(ctx, insertEntrySQL,
		entry.ID, entry.Kind, string(entry.EntityType), entry.EntityID, entry.TaskID,
		entry.FromState, entry.ToState, entry.ActorID, entry.ActorRole, entry.Reason,
		entry.InstanceVersion, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ByEntity returns all entries for a workflow instance, ordered by timestamp.
func (s *PgStore) ByEntity(ctx context.Context, entityType model.EntityType, entityID string) ([]model.AuditEntry, error) {
	return s.query(ctx, `
		SELECT id, kind, entity_type, entity_id, task_id,
		       from_state, to_state, actor_id, actor_role, reason,
		       instance_version, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC`,
		string(entityType), entityID,
	)
}

// ByTask returns all entries for a task, ordered by timestamp.
func (s *PgStore) ByTask(ctx context.Context, taskID string) ([]model.AuditEntry, error) {
	return s.query(ctx, `
		SELECT id, kind, entity_type, entity_id, task_id,
		       from_state, to_state, actor_id, actor_role, reason,
		       instance_version, created_at
		FROM audit_log
		WHERE task_id = $1
		ORDER BY created_at ASC`,
		taskID,
	)
}

func (s *PgStore) query(ctx context.Context, sql string, args ...any) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var entityType string
		if err := rows.Scan(
			&e.ID, &e.Kind, &entityType, &e.EntityID, &e.TaskID,
			&e.FromState, &e.ToState, &e.ActorID, &e.ActorRole, &e.Reason,
			&e.InstanceVersion, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.EntityType = model.EntityType(entityType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
