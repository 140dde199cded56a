package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/huandu/go-sqlbuilder"

	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

// CreateStateLogEntry appends one immutable transition row. Entries are never
// updated or deleted; the latest pointer is maintained by UpsertLatestStateLog
// within the same transaction.
func (r *Repository) CreateStateLogEntry(ctx context.Context, entry models.StateLogEntry) (models.StateLogEntry, error) {
	outcome, err := json.Marshal(entry.Outcome)
	if err != nil {
		return models.StateLogEntry{}, err
	}

	query, args := sqlbuilder.Buildf(`INSERT INTO state_logs
		(entity_type, entity_id, flow_id, end_state_id, outcome, import_run_id) VALUES
		(%s, %s, %s, %s, %s, %s) RETURNING id, created_at`,
		string(entry.EntityType), entry.EntityID, entry.Flow.ID, entry.EndState.ID,
		string(outcome), entry.ImportRunID).
		BuildWithFlavor(sqlFlavor)

	if err := r.QueryRowContext(ctx, query, args...).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return models.StateLogEntry{}, err
	}

	return entry, nil
}

// UpsertLatestStateLog repoints the single latest_state_logs row for the
// entry's (entity, flow) pair at the entry. The unique constraint on
// (entity_type, entity_id, flow_id) enforces the one-pointer invariant.
func (r *Repository) UpsertLatestStateLog(ctx context.Context, entry models.StateLogEntry) error {
	query, args := sqlbuilder.Buildf(`INSERT INTO latest_state_logs
		(entity_type, entity_id, flow_id, state_log_id, end_state_id) VALUES
		(%s, %s, %s, %s, %s)
		ON CONFLICT (entity_type, entity_id, flow_id)
		DO UPDATE SET state_log_id = EXCLUDED.state_log_id, end_state_id = EXCLUDED.end_state_id`,
		string(entry.EntityType), entry.EntityID, entry.Flow.ID, entry.ID, entry.EndState.ID).
		BuildWithFlavor(sqlFlavor)

	_, err := r.ExecContext(ctx, query, args...)
	return err
}

func (r *Repository) GetLatestEndState(ctx context.Context, entityType models.EntityType, entityID uint, flow models.Flow) (*models.EndState, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("end_state_id")
	sb.From("latest_state_logs")
	sb.Where(
		sb.Equal("entity_type", string(entityType)),
		sb.Equal("entity_id", entityID),
		sb.Equal("flow_id", flow.ID),
	)

	query, args := sb.Build()

	var endStateID int
	if err := r.QueryRowContext(ctx, query, args...).Scan(&endStateID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	endState, ok := models.EndStateByID[endStateID]
	if !ok {
		return nil, errors.New("latest state log references an unregistered end state")
	}

	return &endState, nil
}

// GetEntityIDsInState is the work-queue query every stage uses to find its
// input set, ordered by entity id for deterministic processing.
func (r *Repository) GetEntityIDsInState(ctx context.Context, entityType models.EntityType, flow models.Flow, endState models.EndState) ([]uint, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("entity_id")
	sb.From("latest_state_logs")
	sb.Where(
		sb.Equal("entity_type", string(entityType)),
		sb.Equal("flow_id", flow.ID),
		sb.Equal("end_state_id", endState.ID),
	)
	sb.OrderBy("entity_id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint
	for rows.Next() {
		var id uint
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}
