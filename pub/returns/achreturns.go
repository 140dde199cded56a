package returns

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/Badsworth/pfml-scripts-sub004/pub/ach"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
	"github.com/Badsworth/pfml-scripts-sub004/pub/statelog"
	"github.com/Badsworth/pfml-scripts-sub004/pub/writeback"
)

// ProcessAchReturns reconciles every NACHA return file in the received area.
func (p *Processor) ProcessAchReturns(ctx context.Context) (*Result, error) {
	return p.processDir(ctx, "process-ach-returns", p.Config.AchReceivedDir,
		models.FileTypePubAchReturn, p.processAchFile)
}

func (p *Processor) processAchFile(ctx context.Context, repo models.Repository, location string,
	refFileID, runID uint, result *Result) error {

	rc, err := p.Handler.OpenFile(ctx, location)
	if err != nil {
		return err
	}
	defer rc.Close()

	parsed, err := ach.Parse(rc)
	if err != nil {
		return errors.Wrapf(err, "could not parse NACHA file %s", location)
	}
	for _, warning := range parsed.Warnings {
		p.Logger.Warnf("NACHA file %s: %s", location, warning)
	}

	for _, ret := range parsed.Returns {
		if err := p.applyAchReturn(ctx, repo, ret, refFileID, runID, result); err != nil {
			return err
		}
	}
	for _, notification := range parsed.ChangeNotifications {
		if err := p.applyChangeNotification(ctx, repo, notification, refFileID, runID, result); err != nil {
			return err
		}
	}
	return nil
}

// applyAchReturn handles a type-99 rejection: the bank refused the entry and
// sent the money back.
func (p *Processor) applyAchReturn(ctx context.Context, repo models.Repository, ret ach.ACHReturn,
	refFileID, runID uint, result *Result) error {

	kind, id := ach.ParseIDNumber(ret.IDNumber)
	switch kind {
	case ach.IDNumberPayment:
		return p.rejectPayment(ctx, repo, ret, id, refFileID, runID, result)
	case ach.IDNumberPrenote:
		return p.rejectPrenote(ctx, repo, ret, id, refFileID, runID, result)
	}

	return recordError(ctx, repo, result, models.PubError{
		ErrorType:       "unknown_id_format",
		Message:         "id number " + ret.IDNumber + " matches neither E<n> nor P<n>",
		LineNumber:      ret.LineNumber,
		RawData:         ret.RawData,
		ReferenceFileID: refFileID,
		ImportRunID:     runID,
	})
}

func (p *Processor) rejectPayment(ctx context.Context, repo models.Repository, ret ach.ACHReturn,
	pubIndividualID int, refFileID, runID uint, result *Result) error {

	payment, err := repo.GetPaymentByPubIndividualID(ctx, pubIndividualID)
	if err != nil {
		return errors.Wrapf(err, "could not look up payment %s", ret.IDNumber)
	}
	if payment == nil {
		return recordError(ctx, repo, result, models.PubError{
			ErrorType:       "unresolved_payment",
			Message:         "no payment found for id number " + ret.IDNumber,
			LineNumber:      ret.LineNumber,
			RawData:         ret.RawData,
			ReferenceFileID: refFileID,
			ImportRunID:     runID,
		})
	}

	state, err := statelog.LatestState(ctx, repo, models.EntityTypePayment, payment.ID, models.FlowPayment)
	if err != nil {
		return errors.Wrapf(err, "could not read ledger state for payment %d", payment.ID)
	}
	if state != nil && *state == models.StatePaymentErrorFromPub {
		// The return has already been applied.
		return nil
	}
	if state == nil || *state != models.StatePaymentSentToPub {
		return recordError(ctx, repo, result, unexpectedStateError(payment.ID, ret, state, refFileID, runID))
	}

	outcome := models.BuildOutcome("Payment returned by bank partner", models.ValidationIssue{
		Type:    "ach_return",
		Details: "return reason " + ret.ReturnReasonCode,
	})
	if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, payment.ID,
		models.FlowPayment, models.StatePaymentErrorFromPub, outcome, runID); err != nil {
		return err
	}
	if err := recordError(ctx, repo, result, models.PubError{
		ErrorType:       "ach_return",
		Message:         "payment returned with reason " + ret.ReturnReasonCode,
		LineNumber:      ret.LineNumber,
		RawData:         ret.RawData,
		PaymentID:       sql.NullInt64{Int64: int64(payment.ID), Valid: true},
		ReferenceFileID: refFileID,
		ImportRunID:     runID,
	}); err != nil {
		return err
	}
	if err := writeback.Queue(ctx, repo, payment.ID, models.WritebackStatusBankProcessingError, runID); err != nil {
		return err
	}
	result.Rejected++
	return nil
}

func (p *Processor) rejectPrenote(ctx context.Context, repo models.Repository, ret ach.ACHReturn,
	pubIndividualID int, refFileID, runID uint, result *Result) error {

	eft, err := repo.GetPubEftByPubIndividualID(ctx, pubIndividualID)
	if err != nil {
		return errors.Wrapf(err, "could not look up EFT %s", ret.IDNumber)
	}
	if eft == nil {
		return recordError(ctx, repo, result, models.PubError{
			ErrorType:       "unresolved_eft",
			Message:         "no EFT found for id number " + ret.IDNumber,
			LineNumber:      ret.LineNumber,
			RawData:         ret.RawData,
			ReferenceFileID: refFileID,
			ImportRunID:     runID,
		})
	}

	if eft.PrenoteState == models.PrenoteStateRejected {
		return nil
	}
	if eft.PrenoteState != models.PrenoteStatePendingWithPub {
		return recordError(ctx, repo, result, models.PubError{
			ErrorType:  "unexpected_state",
			Message:    "EFT " + ret.IDNumber + " is " + eft.PrenoteState.Description + ", not pending with the bank",
			LineNumber: ret.LineNumber,
			RawData:    ret.RawData,
			PubEftID:   sql.NullInt64{Int64: int64(eft.ID), Valid: true},
			ReferenceFileID: refFileID,
			ImportRunID:     runID,
		})
	}

	if err := repo.UpdatePubEftPrenoteState(ctx, eft.ID, models.PrenoteStateRejected, eft.PrenoteSentAt.Time); err != nil {
		return errors.Wrapf(err, "could not reject EFT %d", eft.ID)
	}
	if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePubEft, eft.ID,
		models.FlowEft, models.StateEftRejected,
		models.BuildOutcome("EFT prenote rejected with reason "+ret.ReturnReasonCode), runID); err != nil {
		return err
	}
	result.EftRejected++
	return nil
}

// applyChangeNotification handles a type-98 acceptance: the bank took the
// entry but corrected some of its data.
func (p *Processor) applyChangeNotification(ctx context.Context, repo models.Repository,
	notification ach.ACHChangeNotification, refFileID, runID uint, result *Result) error {

	kind, id := ach.ParseIDNumber(notification.IDNumber)
	switch kind {
	case ach.IDNumberPrenote:
		return p.approvePrenote(ctx, repo, notification, id, refFileID, runID, result)
	case ach.IDNumberPayment:
		return p.completePayment(ctx, repo, notification, id, refFileID, runID, result)
	}

	return recordError(ctx, repo, result, models.PubError{
		ErrorType:       "unknown_id_format",
		Message:         "id number " + notification.IDNumber + " matches neither E<n> nor P<n>",
		LineNumber:      notification.LineNumber,
		RawData:         notification.RawData,
		ReferenceFileID: refFileID,
		ImportRunID:     runID,
	})
}

func (p *Processor) approvePrenote(ctx context.Context, repo models.Repository,
	notification ach.ACHChangeNotification, pubIndividualID int, refFileID, runID uint, result *Result) error {

	eft, err := repo.GetPubEftByPubIndividualID(ctx, pubIndividualID)
	if err != nil {
		return errors.Wrapf(err, "could not look up EFT %s", notification.IDNumber)
	}
	if eft == nil {
		return recordError(ctx, repo, result, models.PubError{
			ErrorType:       "unresolved_eft",
			Message:         "no EFT found for id number " + notification.IDNumber,
			LineNumber:      notification.LineNumber,
			RawData:         notification.RawData,
			ReferenceFileID: refFileID,
			ImportRunID:     runID,
		})
	}

	if eft.PrenoteState == models.PrenoteStateApproved {
		return nil
	}
	if eft.PrenoteState != models.PrenoteStatePendingWithPub {
		return recordError(ctx, repo, result, models.PubError{
			ErrorType:  "unexpected_state",
			Message:    "EFT " + notification.IDNumber + " is " + eft.PrenoteState.Description + ", not pending with the bank",
			LineNumber: notification.LineNumber,
			RawData:    notification.RawData,
			PubEftID:   sql.NullInt64{Int64: int64(eft.ID), Valid: true},
			ReferenceFileID: refFileID,
			ImportRunID:     runID,
		})
	}

	if err := repo.UpdatePubEftPrenoteState(ctx, eft.ID, models.PrenoteStateApproved, eft.PrenoteSentAt.Time); err != nil {
		return errors.Wrapf(err, "could not approve EFT %d", eft.ID)
	}
	if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePubEft, eft.ID,
		models.FlowEft, models.StateEftApproved,
		models.BuildOutcome("EFT prenote acknowledged by bank partner"), runID); err != nil {
		return err
	}
	result.EftApproved++
	return nil
}

func (p *Processor) completePayment(ctx context.Context, repo models.Repository,
	notification ach.ACHChangeNotification, pubIndividualID int, refFileID, runID uint, result *Result) error {

	payment, err := repo.GetPaymentByPubIndividualID(ctx, pubIndividualID)
	if err != nil {
		return errors.Wrapf(err, "could not look up payment %s", notification.IDNumber)
	}
	if payment == nil {
		return recordError(ctx, repo, result, models.PubError{
			ErrorType:       "unresolved_payment",
			Message:         "no payment found for id number " + notification.IDNumber,
			LineNumber:      notification.LineNumber,
			RawData:         notification.RawData,
			ReferenceFileID: refFileID,
			ImportRunID:     runID,
		})
	}

	state, err := statelog.LatestState(ctx, repo, models.EntityTypePayment, payment.ID, models.FlowPayment)
	if err != nil {
		return errors.Wrapf(err, "could not read ledger state for payment %d", payment.ID)
	}
	if state != nil && *state == models.StatePaymentComplete {
		return nil
	}
	if state == nil || *state != models.StatePaymentSentToPub {
		return recordError(ctx, repo, result, unexpectedStateError(payment.ID, notification.ACHReturn, state, refFileID, runID))
	}

	outcome := models.BuildOutcome("Payment accepted with change notification: " + notification.ChangeInformation)
	if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, payment.ID,
		models.FlowPayment, models.StatePaymentComplete, outcome, runID); err != nil {
		return err
	}
	if err := writeback.Queue(ctx, repo, payment.ID, models.WritebackStatusPaid, runID); err != nil {
		return err
	}
	result.Completed++
	return nil
}

func unexpectedStateError(paymentID uint, ret ach.ACHReturn, state *models.EndState, refFileID, runID uint) models.PubError {
	description := "no ledger state"
	if state != nil {
		description = state.Description
	}
	return models.PubError{
		ErrorType:       "unexpected_state",
		Message:         "payment for id number " + ret.IDNumber + " is in state " + description + ", not sent to bank",
		LineNumber:      ret.LineNumber,
		RawData:         ret.RawData,
		PaymentID:       sql.NullInt64{Int64: int64(paymentID), Valid: true},
		ReferenceFileID: refFileID,
		ImportRunID:     runID,
	}
}
