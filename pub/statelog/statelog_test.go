package statelog

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

func TestAppendTerminalState(t *testing.T) {
	ctx := context.Background()
	outcome := models.BuildOutcome("Staged for processing")

	repo := &models.MockRepository{}
	repo.On("CreateStateLogEntry", ctx, mock.MatchedBy(func(entry models.StateLogEntry) bool {
		return entry.EntityType == models.EntityTypePayment && entry.EntityID == 42 &&
			entry.Flow == models.FlowPayment && entry.EndState == models.StatePaymentStaged &&
			entry.ImportRunID == 5
	})).Return(models.StateLogEntry{ID: 9, EntityID: 42}, nil)
	repo.On("UpsertLatestStateLog", ctx, mock.MatchedBy(func(entry models.StateLogEntry) bool {
		return entry.ID == 9
	})).Return(nil)

	entry, err := AppendTerminalState(ctx, repo, models.EntityTypePayment, 42,
		models.FlowPayment, models.StatePaymentStaged, outcome, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 9, entry.ID)
	repo.AssertExpectations(t)
}

// A failed pointer update must surface; a ledger entry without a matching
// latest pointer would hide the entity from every stage.
func TestAppendTerminalStatePointerFailure(t *testing.T) {
	ctx := context.Background()

	repo := &models.MockRepository{}
	repo.On("CreateStateLogEntry", ctx, mock.Anything).
		Return(models.StateLogEntry{ID: 9}, nil)
	repo.On("UpsertLatestStateLog", ctx, mock.Anything).
		Return(errors.New("conflict"))

	_, err := AppendTerminalState(ctx, repo, models.EntityTypePayment, 42,
		models.FlowPayment, models.StatePaymentStaged, models.Outcome{}, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not repoint latest state log")
}

func TestAllEntitiesInState(t *testing.T) {
	ctx := context.Background()

	repo := &models.MockRepository{}
	repo.On("GetEntityIDsInState", ctx, models.EntityTypePayment, models.FlowPayment,
		models.StatePaymentReadyForPub).Return([]uint{3, 8}, nil)

	ids, err := AllEntitiesInState(ctx, repo, models.EntityTypePayment,
		models.FlowPayment, models.StatePaymentReadyForPub)
	require.NoError(t, err)
	assert.Equal(t, []uint{3, 8}, ids)
}
