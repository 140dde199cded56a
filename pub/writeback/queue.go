// Package writeback queues payment dispositions for the claims system and
// serializes them into the writeback CSV it consumes.
package writeback

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
	"github.com/Badsworth/pfml-scripts-sub004/pub/statelog"
)

// Queue records one payment disposition for the next writeback run and
// appends the matching ledger entry on the payment's writeback flow. Runs in
// the caller's transaction.
func Queue(ctx context.Context, repo models.Repository, paymentID uint,
	status models.WritebackTransactionStatus, importRunID uint) error {

	if _, err := repo.CreateWritebackDetail(ctx, models.WritebackDetail{
		PaymentID:         paymentID,
		TransactionStatus: status,
		ImportRunID:       importRunID,
	}); err != nil {
		return errors.Wrapf(err, "could not queue writeback for payment %d", paymentID)
	}

	_, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, paymentID,
		models.FlowWriteback, models.StateWritebackQueued,
		models.BuildOutcome(status.Description), importRunID)
	return err
}
