// Package statelog is the append-only transition ledger every batch stage
// reads and writes. A tracked entity (payment, employee, pub_eft) moves
// through a flow by appending terminal states; a companion latest pointer
// gives each stage a cheap "what needs my attention" query.
//
// There is no locking discipline here. The ledger is only ever written by one
// scheduled batch process at a time, and all mutation happens inside the
// caller's single database transaction.
package statelog

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

// AppendTerminalState creates one immutable state log entry and atomically
// repoints the latest pointer for (entity, flow) at it. The repository must
// be bound to the caller's transaction.
func AppendTerminalState(ctx context.Context, repo models.Repository,
	entityType models.EntityType, entityID uint, flow models.Flow,
	endState models.EndState, outcome models.Outcome, importRunID uint) (models.StateLogEntry, error) {

	entry := models.StateLogEntry{
		EntityType:  entityType,
		EntityID:    entityID,
		Flow:        flow,
		EndState:    endState,
		Outcome:     outcome,
		ImportRunID: importRunID,
	}

	entry, err := repo.CreateStateLogEntry(ctx, entry)
	if err != nil {
		return models.StateLogEntry{}, errors.Wrap(err, "could not append state log entry")
	}

	if err := repo.UpsertLatestStateLog(ctx, entry); err != nil {
		return models.StateLogEntry{}, errors.Wrap(err, "could not repoint latest state log")
	}

	return entry, nil
}

// LatestState returns the entity's current terminal state for the flow, or
// nil when the entity has never entered the flow.
func LatestState(ctx context.Context, repo models.Repository,
	entityType models.EntityType, entityID uint, flow models.Flow) (*models.EndState, error) {
	return repo.GetLatestEndState(ctx, entityType, entityID, flow)
}

// AllEntitiesInState is the primary work-queue query: every stage uses it to
// find the entities waiting in its input state.
func AllEntitiesInState(ctx context.Context, repo models.Repository,
	entityType models.EntityType, flow models.Flow, endState models.EndState) ([]uint, error) {
	return repo.GetEntityIDsInState(ctx, entityType, flow, endState)
}
