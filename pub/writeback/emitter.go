package writeback

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Badsworth/pfml-scripts-sub004/conf"
	"github.com/Badsworth/pfml-scripts-sub004/pub/constants"
	"github.com/Badsworth/pfml-scripts-sub004/pub/files"
	"github.com/Badsworth/pfml-scripts-sub004/pub/metrics"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models/postgres"
	"github.com/Badsworth/pfml-scripts-sub004/pub/statelog"
)

// Config holds the drop area for the writeback CSV.
type Config struct {
	WritebackDir string `conf:"PUB_WRITEBACK_DIR"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := conf.Checkout(&cfg); err != nil {
		return cfg, errors.Wrap(err, "could not load writeback config")
	}
	return cfg, nil
}

// Emitter serializes every pending disposition into one writeback CSV per
// run and stamps the details sent.
type Emitter struct {
	Logger  logrus.FieldLogger
	DB      *sql.DB
	Handler files.FileHandler
	Config  Config

	// Clock override for tests. Nil means time.Now.
	Now func() time.Time
}

// Result summarizes one writeback run.
type Result struct {
	ImportRunID uint
	Details     int
	File        string
}

// Timestamp format the claims system expects in transStatusDate.
const writebackTimestampFormat = "2006-01-02 15:04:05"

var writebackHeader = []string{
	"pei_C_value", "pei_I_value", "status", "statusEffectiveDate", "statusReason",
	"stockNo", "extractionDate", "transactionNo", "transactionStatus", "transStatusDate",
}

// GenerateWriteback collects pending writeback details, uploads the CSV, and
// marks the details sent, all inside one transaction. A run with nothing
// pending writes no file.
func (e *Emitter) GenerateWriteback(ctx context.Context) (*Result, error) {
	close := metrics.NewChild(ctx, "GenerateWriteback")
	defer close()

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	runRepo := postgres.NewRepository(e.DB)
	runID, err := runRepo.CreateImportRun(ctx, models.ImportRun{
		UUID:      uuid.NewRandom().String(),
		Source:    "generate-writeback",
		Status:    constants.ImportInprog,
		StartedAt: now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create import run")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, e.failRun(ctx, runID, errors.Wrap(err, "could not begin transaction"))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result := &Result{ImportRunID: runID}
	repo := postgres.NewRepositoryTx(tx)
	if err := e.emit(ctx, repo, runID, now(), result); err != nil {
		return nil, e.failRun(ctx, runID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, e.failRun(ctx, runID, errors.Wrap(err, "could not commit transaction"))
	}
	if err := runRepo.UpdateImportRunStatus(ctx, runID, constants.ImportComplete); err != nil {
		return nil, errors.Wrap(err, "could not mark import run complete")
	}

	e.Logger.WithFields(logrus.Fields{
		"importRunID": runID,
		"details":     result.Details,
		"file":        result.File,
	}).Info("Writeback generated.")
	return result, nil
}

func (e *Emitter) emit(ctx context.Context, repo models.Repository, runID uint,
	now time.Time, result *Result) error {

	details, err := repo.GetPendingWritebackDetails(ctx)
	if err != nil {
		return errors.Wrap(err, "could not query pending writeback details")
	}
	if len(details) == 0 {
		e.Logger.Info("No writeback details pending, skipping file.")
		return nil
	}

	paymentIDs := make([]uint, 0, len(details))
	seen := make(map[uint]struct{}, len(details))
	for _, detail := range details {
		if _, ok := seen[detail.PaymentID]; ok {
			continue
		}
		seen[detail.PaymentID] = struct{}{}
		paymentIDs = append(paymentIDs, detail.PaymentID)
	}
	payments, err := repo.GetPaymentsByIDs(ctx, paymentIDs)
	if err != nil {
		return errors.Wrap(err, "could not load payments for writeback")
	}
	paymentsByID := make(map[uint]models.Payment, len(payments))
	for _, payment := range payments {
		paymentsByID[payment.ID] = payment
	}

	rows := make([][]string, 0, len(details))
	detailIDs := make([]uint, 0, len(details))
	for _, detail := range details {
		payment, ok := paymentsByID[detail.PaymentID]
		if !ok {
			return errors.Errorf("writeback detail %d references unknown payment %d", detail.ID, detail.PaymentID)
		}
		rows = append(rows, writebackRow(payment, detail, now))
		detailIDs = append(detailIDs, detail.ID)
	}

	location, err := e.upload(ctx, repo, rows, runID, now)
	if err != nil {
		return err
	}

	if err := repo.MarkWritebackDetailsSent(ctx, detailIDs, now); err != nil {
		return errors.Wrap(err, "could not mark writeback details sent")
	}
	for _, id := range paymentIDs {
		if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, id,
			models.FlowWriteback, models.StateWritebackSent,
			models.BuildOutcome("Disposition sent to claims system"), runID); err != nil {
			return err
		}
	}

	result.Details = len(details)
	result.File = location
	return nil
}

// writebackRow serializes one disposition into the claims-system row layout.
// stockNo carries the check number and is empty for ACH payments.
func writebackRow(payment models.Payment, detail models.WritebackDetail, now time.Time) []string {
	stockNo := ""
	if payment.CheckNumber.Valid {
		stockNo = strconv.FormatInt(payment.CheckNumber.Int64, 10)
	}
	return []string{
		payment.FineosPeiCValue,
		payment.FineosPeiIValue,
		"Active",
		now.Format(constants.ExtractDateFormat),
		"",
		stockNo,
		payment.ExtractionDate.Format(constants.ExtractDateFormat),
		"",
		detail.TransactionStatus.Description,
		now.Format(writebackTimestampFormat),
	}
}

func (e *Emitter) upload(ctx context.Context, repo models.Repository, rows [][]string,
	runID uint, now time.Time) (string, error) {

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(writebackHeader); err != nil {
		return "", errors.Wrap(err, "could not write writeback header")
	}
	if err := w.WriteAll(rows); err != nil {
		return "", errors.Wrap(err, "could not write writeback rows")
	}

	name := now.Format(constants.ExtractTimestampFormat) + "-pub-writeback.csv"
	location, err := e.Handler.WriteFile(ctx, e.Config.WritebackDir, name, buf.Bytes())
	if err != nil {
		return "", errors.Wrap(err, "could not upload writeback file")
	}

	id, err := repo.CreateReferenceFile(ctx, models.ReferenceFile{
		FileLocation:       location,
		FileType:           models.FileTypeWriteback,
		CreatedImportRunID: runID,
	})
	if err != nil {
		return "", errors.Wrap(err, "could not create reference file")
	}
	if err := repo.MarkReferenceFileProcessed(ctx, id, runID); err != nil {
		return "", errors.Wrap(err, "could not mark reference file processed")
	}
	return location, nil
}

func (e *Emitter) failRun(ctx context.Context, runID uint, cause error) error {
	repo := postgres.NewRepository(e.DB)
	if err := repo.UpdateImportRunStatus(ctx, runID, constants.ImportFail); err != nil {
		e.Logger.Errorf("Could not mark import run %d failed: %s", runID, err)
	}
	return cause
}
