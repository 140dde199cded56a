package returns

import (
	"context"
	"database/sql"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
	"github.com/Badsworth/pfml-scripts-sub004/pub/statelog"
	"github.com/Badsworth/pfml-scripts-sub004/pub/writeback"
)

// Check payment statuses as reported by the bank partner.
const (
	checkStatusPaid        = "paid"
	checkStatusOutstanding = "outstanding"
	checkStatusFuture      = "future"
	checkStatusVoid        = "void"
	checkStatusStale       = "stale"
	checkStatusStop        = "stop"
)

// terminalCheckStatuses maps each check rejection status to the disposition
// written back to the claims system.
var terminalCheckStatuses = map[string]models.WritebackTransactionStatus{
	checkStatusVoid:  models.WritebackStatusCheckVoided,
	checkStatusStale: models.WritebackStatusCheckStale,
	checkStatusStop:  models.WritebackStatusCheckStopped,
}

var checkReturnColumns = []string{"check_number", "payee_name", "status", "paid_date", "amount"}

// ProcessCheckReturns reconciles every check payment return file in the
// received area.
func (p *Processor) ProcessCheckReturns(ctx context.Context) (*Result, error) {
	return p.processDir(ctx, "process-check-returns", p.Config.CheckReceivedDir,
		models.FileTypePubCheckReturn, p.processCheckFile)
}

func (p *Processor) processCheckFile(ctx context.Context, repo models.Repository, location string,
	refFileID, runID uint, result *Result) error {

	rc, err := p.Handler.OpenFile(ctx, location)
	if err != nil {
		return err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	header, err := reader.Read()
	if err != nil {
		return errors.Wrapf(err, "could not read header of %s", location)
	}
	indexes, err := checkColumnIndexes(header)
	if err != nil {
		return errors.Wrapf(err, "unusable check return file %s", location)
	}

	lineNumber := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "malformed CSV row in %s", location)
		}
		lineNumber++

		if err := p.applyCheckReturn(ctx, repo, checkReturnRow{
			checkNumber: record[indexes[0]],
			status:      record[indexes[2]],
			lineNumber:  lineNumber,
			raw:         strings.Join(record, ","),
		}, refFileID, runID, result); err != nil {
			return err
		}
	}
	return nil
}

// checkColumnIndexes locates the expected columns; a header missing any of
// them makes the whole file unusable.
func checkColumnIndexes(header []string) ([]int, error) {
	indexes := make([]int, len(checkReturnColumns))
	for i, want := range checkReturnColumns {
		indexes[i] = -1
		for j, got := range header {
			if strings.EqualFold(strings.TrimSpace(got), want) {
				indexes[i] = j
				break
			}
		}
		if indexes[i] == -1 {
			return nil, errors.Errorf("missing column %s", want)
		}
	}
	return indexes, nil
}

type checkReturnRow struct {
	checkNumber string
	status      string
	lineNumber  int
	raw         string
}

func (p *Processor) applyCheckReturn(ctx context.Context, repo models.Repository, row checkReturnRow,
	refFileID, runID uint, result *Result) error {

	number, err := strconv.ParseInt(strings.TrimSpace(row.checkNumber), 10, 64)
	if err != nil {
		return recordError(ctx, repo, result, models.PubError{
			ErrorType:       "check_parse",
			Message:         "unparseable check number " + row.checkNumber,
			LineNumber:      row.lineNumber,
			RawData:         row.raw,
			ReferenceFileID: refFileID,
			ImportRunID:     runID,
		})
	}

	status := strings.ToLower(strings.TrimSpace(row.status))
	switch status {
	case checkStatusPaid, checkStatusOutstanding, checkStatusFuture, checkStatusVoid, checkStatusStale, checkStatusStop:
	default:
		return recordError(ctx, repo, result, models.PubError{
			ErrorType:       "check_parse",
			Message:         "unknown check status " + row.status,
			LineNumber:      row.lineNumber,
			RawData:         row.raw,
			ReferenceFileID: refFileID,
			ImportRunID:     runID,
		})
	}

	payment, err := repo.GetPaymentByCheckNumber(ctx, number)
	if err != nil {
		return errors.Wrapf(err, "could not look up check %d", number)
	}
	if payment == nil {
		return recordError(ctx, repo, result, models.PubError{
			ErrorType:       "unresolved_check",
			Message:         "no payment found for check number " + row.checkNumber,
			LineNumber:      row.lineNumber,
			RawData:         row.raw,
			ReferenceFileID: refFileID,
			ImportRunID:     runID,
		})
	}

	state, err := statelog.LatestState(ctx, repo, models.EntityTypePayment, payment.ID, models.FlowPayment)
	if err != nil {
		return errors.Wrapf(err, "could not read ledger state for payment %d", payment.ID)
	}

	// The check simply has not cleared yet; record the status and move on.
	if status == checkStatusOutstanding || status == checkStatusFuture {
		if err := repo.UpdatePaymentCheckStatus(ctx, payment.ID, status); err != nil {
			return errors.Wrapf(err, "could not update check status for payment %d", payment.ID)
		}
		result.Outstanding++
		return nil
	}

	target := models.StatePaymentComplete
	if status != checkStatusPaid {
		target = models.StatePaymentErrorFromPub
	}
	if state != nil && *state == target {
		// This return has already been applied.
		return nil
	}
	if state == nil || *state != models.StatePaymentSentToPub {
		description := "no ledger state"
		if state != nil {
			description = state.Description
		}
		return recordError(ctx, repo, result, models.PubError{
			ErrorType:       "unexpected_state",
			Message:         "payment for check " + row.checkNumber + " is in state " + description + ", not sent to bank",
			LineNumber:      row.lineNumber,
			RawData:         row.raw,
			PaymentID:       sql.NullInt64{Int64: int64(payment.ID), Valid: true},
			ReferenceFileID: refFileID,
			ImportRunID:     runID,
		})
	}

	if err := repo.UpdatePaymentCheckStatus(ctx, payment.ID, status); err != nil {
		return errors.Wrapf(err, "could not update check status for payment %d", payment.ID)
	}

	if status == checkStatusPaid {
		if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, payment.ID,
			models.FlowPayment, models.StatePaymentComplete,
			models.BuildOutcome("Check cleared by bank partner"), runID); err != nil {
			return err
		}
		if err := writeback.Queue(ctx, repo, payment.ID, models.WritebackStatusPaid, runID); err != nil {
			return err
		}
		result.Completed++
		return nil
	}

	outcome := models.BuildOutcome("Check did not clear", models.ValidationIssue{
		Type:    "check_return",
		Details: "check status " + status,
	})
	if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, payment.ID,
		models.FlowPayment, models.StatePaymentErrorFromPub, outcome, runID); err != nil {
		return err
	}
	if err := recordError(ctx, repo, result, models.PubError{
		ErrorType:       "check_return",
		Message:         "check " + row.checkNumber + " reported " + status,
		LineNumber:      row.lineNumber,
		RawData:         row.raw,
		PaymentID:       sql.NullInt64{Int64: int64(payment.ID), Valid: true},
		ReferenceFileID: refFileID,
		ImportRunID:     runID,
	}); err != nil {
		return err
	}
	if err := writeback.Queue(ctx, repo, payment.ID, terminalCheckStatuses[status], runID); err != nil {
		return err
	}
	result.Rejected++
	return nil
}
