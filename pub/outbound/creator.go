// Package outbound assembles the transaction files sent to the bank partner:
// a NACHA file carrying ACH payment credits and EFT prenotes, and a
// positive-pay issue file for check payments.
package outbound

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
	"github.com/Badsworth/pfml-scripts-sub004/pub/ach"
	"github.com/Badsworth/pfml-scripts-sub004/pub/constants"
	"github.com/Badsworth/pfml-scripts-sub004/pub/files"
	"github.com/Badsworth/pfml-scripts-sub004/pub/metrics"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models/postgres"
	"github.com/Badsworth/pfml-scripts-sub004/pub/statelog"
	"github.com/Badsworth/pfml-scripts-sub004/pub/writeback"
)

// Config identifies this originator to the bank partner.
type Config struct {
	OutboundDir string `conf:"PUB_OUTBOUND_DIR"`

	ImmediateDestination     string `conf:"PUB_NACHA_IMMEDIATE_DEST"`
	ImmediateOrigin          string `conf:"PUB_NACHA_IMMEDIATE_ORIGIN"`
	ImmediateDestinationName string `conf:"PUB_NACHA_DEST_NAME"`
	ImmediateOriginName      string `conf:"PUB_NACHA_ORIGIN_NAME"`
	CompanyName              string `conf:"PUB_NACHA_COMPANY_NAME"`
	CompanyID                string `conf:"PUB_NACHA_COMPANY_ID"`
	OriginatingDFI           string `conf:"PUB_NACHA_ODFI"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := conf.Checkout(&cfg); err != nil {
		return cfg, errors.Wrap(err, "could not load outbound config")
	}
	return cfg, nil
}

// Creator builds the outbound files for one run. Payments must be in the
// ready state; EFT prenotes are picked up from their pending pre-registration
// state.
type Creator struct {
	Logger  logrus.FieldLogger
	DB      *sql.DB
	Handler files.FileHandler
	Config  Config

	// Clock override for tests. Nil means time.Now.
	Now func() time.Time
}

// Result summarizes one transaction file run.
type Result struct {
	ImportRunID   uint
	AchPayments   int
	Prenotes      int
	CheckPayments int
	Completed     int
	MissingEft    int
	NachaFile     string
	CheckFile     string
}

// Entries are credits and zero-amount prenotes only.
const serviceClassCredits = 220

// CreatePaymentFiles assembles and uploads the outbound files inside one
// transaction. Payments with no file to join (nothing disbursable) complete
// immediately.
func (c *Creator) CreatePaymentFiles(ctx context.Context) (*Result, error) {
	close := metrics.NewChild(ctx, "CreatePaymentFiles")
	defer close()

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	runRepo := postgres.NewRepository(c.DB)
	runID, err := runRepo.CreateImportRun(ctx, models.ImportRun{
		UUID:      uuid.NewRandom().String(),
		Source:    "create-payment-files",
		Status:    constants.ImportInprog,
		StartedAt: now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create import run")
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, c.failRun(ctx, runID, errors.Wrap(err, "could not begin transaction"))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result := &Result{ImportRunID: runID}
	repo := postgres.NewRepositoryTx(tx)
	if err := c.createFiles(ctx, repo, runID, now(), result); err != nil {
		return nil, c.failRun(ctx, runID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, c.failRun(ctx, runID, errors.Wrap(err, "could not commit transaction"))
	}
	if err := runRepo.UpdateImportRunStatus(ctx, runID, constants.ImportComplete); err != nil {
		return nil, errors.Wrap(err, "could not mark import run complete")
	}

	c.Logger.WithFields(logrus.Fields{
		"importRunID": runID,
		"achPayments": result.AchPayments,
		"prenotes":    result.Prenotes,
		"checks":      result.CheckPayments,
		"completed":   result.Completed,
	}).Info("Transaction files created.")
	return result, nil
}

func (c *Creator) createFiles(ctx context.Context, repo models.Repository, runID uint, now time.Time, result *Result) error {
	ids, err := statelog.AllEntitiesInState(ctx, repo, models.EntityTypePayment, models.FlowPayment, models.StatePaymentReadyForPub)
	if err != nil {
		return errors.Wrap(err, "could not query ready payments")
	}

	var payments []models.Payment
	if len(ids) > 0 {
		payments, err = repo.GetPaymentsByIDs(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "could not load ready payments")
		}
	}

	builder := ach.NewFileBuilder(ach.FileHeader{
		ImmediateDestination:     c.Config.ImmediateDestination,
		ImmediateOrigin:          c.Config.ImmediateOrigin,
		ImmediateDestinationName: c.Config.ImmediateDestinationName,
		ImmediateOriginName:      c.Config.ImmediateOriginName,
		CreationTime:             now,
	})
	batch := builder.AddBatch(ach.BatchParams{
		ServiceClassCode:   serviceClassCredits,
		CompanyName:        c.Config.CompanyName,
		CompanyID:          c.Config.CompanyID,
		StandardEntryClass: "PPD",
		EntryDescription:   "BENEFITS",
		EffectiveEntryDate: now.AddDate(0, 0, 1),
		OriginatingDFI:     c.Config.OriginatingDFI,
	})

	if err := c.addPrenotes(ctx, repo, batch, runID, now, result); err != nil {
		return err
	}

	var checkRows [][]string
	for _, payment := range payments {
		if !disbursable(payment) {
			if err := c.completeWithoutDisbursement(ctx, repo, payment, runID); err != nil {
				return err
			}
			result.Completed++
			continue
		}

		switch payment.DisbursementMethod {
		case models.DisbursementMethodACH:
			sent, err := c.addAchPayment(ctx, repo, batch, payment, runID)
			if err != nil {
				return err
			}
			if !sent {
				result.MissingEft++
				continue
			}
			result.AchPayments++
		case models.DisbursementMethodCheck:
			row, err := c.issueCheck(ctx, repo, payment, runID, now)
			if err != nil {
				return err
			}
			checkRows = append(checkRows, row)
			result.CheckPayments++
		}

		if err := c.markSent(ctx, repo, payment.ID, runID); err != nil {
			return err
		}
	}

	if result.AchPayments+result.Prenotes > 0 {
		location, err := c.uploadNacha(ctx, repo, builder, runID, now)
		if err != nil {
			return err
		}
		result.NachaFile = location
	}
	if len(checkRows) > 0 {
		location, err := c.uploadCheckIssue(ctx, repo, checkRows, runID, now)
		if err != nil {
			return err
		}
		result.CheckFile = location
	}
	return nil
}

// addPrenotes adds a zero-amount prenote entry for every EFT awaiting
// registration and moves each to pending-with-partner.
func (c *Creator) addPrenotes(ctx context.Context, repo models.Repository, batch *ach.Batch,
	runID uint, now time.Time, result *Result) error {

	efts, err := repo.GetPubEftsInPrenoteState(ctx, models.PrenoteStatePendingPrePub)
	if err != nil {
		return errors.Wrap(err, "could not load pending prenotes")
	}

	for _, eft := range efts {
		name, err := c.payeeName(ctx, repo, eft.EmployeeID)
		if err != nil {
			return err
		}
		if err := batch.AddEntry(ach.Entry{
			TransactionCode: prenoteTransCode(eft.AccountType),
			RoutingNumber:   eft.RoutingNumber,
			AccountNumber:   eft.AccountNumber,
			IDNumber:        ach.PrenoteIDNumber(eft.PubIndividualID),
			Name:            name,
		}); err != nil {
			return errors.Wrapf(err, "could not add prenote entry for EFT %d", eft.ID)
		}

		if err := repo.UpdatePubEftPrenoteState(ctx, eft.ID, models.PrenoteStatePendingWithPub, now); err != nil {
			return errors.Wrapf(err, "could not advance prenote state for EFT %d", eft.ID)
		}
		if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePubEft, eft.ID,
			models.FlowEft, models.StateEftPendingWithPub,
			models.BuildOutcome("EFT prenote sent to bank partner"), runID); err != nil {
			return err
		}
		result.Prenotes++
	}
	return nil
}

// addAchPayment reports false when the employee has no approved EFT yet; the
// payment stays ready and is retried once its prenote clears.
func (c *Creator) addAchPayment(ctx context.Context, repo models.Repository, batch *ach.Batch,
	payment models.Payment, runID uint) (bool, error) {

	eft, err := repo.GetApprovedPubEftForEmployee(ctx, payment.EmployeeID)
	if err != nil {
		return false, errors.Wrapf(err, "could not look up approved EFT for employee %d", payment.EmployeeID)
	}
	if eft == nil {
		c.Logger.Warnf("Payment %d has no approved EFT for employee %d, leaving it for the next run.",
			payment.ID, payment.EmployeeID)
		return false, nil
	}

	name, err := c.payeeName(ctx, repo, payment.EmployeeID)
	if err != nil {
		return false, err
	}
	if err := batch.AddEntry(ach.Entry{
		TransactionCode: creditTransCode(eft.AccountType),
		RoutingNumber:   eft.RoutingNumber,
		AccountNumber:   eft.AccountNumber,
		Amount:          payment.Amount,
		IDNumber:        ach.PaymentIDNumber(payment.PubIndividualID),
		Name:            name,
	}); err != nil {
		return false, errors.Wrapf(err, "could not add entry for payment %d", payment.ID)
	}
	return true, nil
}

// issueCheck assigns the payment its check number and renders its
// positive-pay row.
func (c *Creator) issueCheck(ctx context.Context, repo models.Repository, payment models.Payment,
	runID uint, now time.Time) ([]string, error) {

	number, err := repo.NextCheckNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not draw check number")
	}
	if err := repo.AssignPaymentCheckNumber(ctx, payment.ID, number); err != nil {
		return nil, errors.Wrapf(err, "could not assign check number to payment %d", payment.ID)
	}

	name, err := c.payeeName(ctx, repo, payment.EmployeeID)
	if err != nil {
		return nil, err
	}
	return []string{
		strconv.FormatInt(number, 10),
		payment.Amount.StringFixed(2),
		name,
		now.Format(constants.ExtractDateFormat),
	}, nil
}

// completeWithoutDisbursement closes out payments the bank never sees:
// zero-dollar payments and bookkeeping entries like cancellations and
// overpayments.
func (c *Creator) completeWithoutDisbursement(ctx context.Context, repo models.Repository,
	payment models.Payment, runID uint) error {

	if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, payment.ID,
		models.FlowPayment, models.StatePaymentComplete,
		models.BuildOutcome("No disbursement required for "+payment.TransactionType.Description+" payment"),
		runID); err != nil {
		return err
	}
	return writeback.Queue(ctx, repo, payment.ID, models.WritebackStatusPaid, runID)
}

func (c *Creator) markSent(ctx context.Context, repo models.Repository, paymentID, runID uint) error {
	if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, paymentID,
		models.FlowPayment, models.StatePaymentSentToPub,
		models.BuildOutcome("Payment sent to bank partner"), runID); err != nil {
		return err
	}
	return writeback.Queue(ctx, repo, paymentID, models.WritebackStatusPostedToBank, runID)
}

func (c *Creator) uploadNacha(ctx context.Context, repo models.Repository, builder *ach.FileBuilder,
	runID uint, now time.Time) (string, error) {

	var buf bytes.Buffer
	if err := builder.WriteTo(&buf); err != nil {
		return "", err
	}

	name := now.Format(constants.ExtractTimestampFormat) + "-pub-nacha.ach"
	location, err := c.Handler.WriteFile(ctx, c.Config.OutboundDir, name, buf.Bytes())
	if err != nil {
		return "", errors.Wrap(err, "could not upload NACHA file")
	}
	return location, c.registerFile(ctx, repo, location, models.FileTypePubNachaOutbound, runID)
}

var checkIssueHeader = []string{"check_number", "amount", "payee_name", "issue_date"}

func (c *Creator) uploadCheckIssue(ctx context.Context, repo models.Repository, rows [][]string,
	runID uint, now time.Time) (string, error) {

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(checkIssueHeader); err != nil {
		return "", errors.Wrap(err, "could not write check issue header")
	}
	if err := w.WriteAll(rows); err != nil {
		return "", errors.Wrap(err, "could not write check issue rows")
	}

	name := now.Format(constants.ExtractTimestampFormat) + "-pub-check-issue.csv"
	location, err := c.Handler.WriteFile(ctx, c.Config.OutboundDir, name, buf.Bytes())
	if err != nil {
		return "", errors.Wrap(err, "could not upload check issue file")
	}
	return location, c.registerFile(ctx, repo, location, models.FileTypePubCheckOutbound, runID)
}

func (c *Creator) registerFile(ctx context.Context, repo models.Repository, location string,
	fileType models.ReferenceFileType, runID uint) error {

	id, err := repo.CreateReferenceFile(ctx, models.ReferenceFile{
		FileLocation:       location,
		FileType:           fileType,
		CreatedImportRunID: runID,
	})
	if err != nil {
		return errors.Wrapf(err, "could not register %s", location)
	}
	return errors.Wrapf(repo.MarkReferenceFileProcessed(ctx, id, runID),
		"could not mark %s processed", location)
}

func (c *Creator) payeeName(ctx context.Context, repo models.Repository, employeeID uint) (string, error) {
	employee, err := repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return "", errors.Wrapf(err, "could not load employee %d", employeeID)
	}
	if employee == nil {
		return "", errors.Errorf("employee %d not found", employeeID)
	}
	return employee.LastName + " " + employee.FirstName, nil
}

func (c *Creator) failRun(ctx context.Context, runID uint, cause error) error {
	repo := postgres.NewRepository(c.DB)
	if err := repo.UpdateImportRunStatus(ctx, runID, constants.ImportFail); err != nil {
		c.Logger.Errorf("Could not mark import run %d failed: %s", runID, err)
	}
	return cause
}

// disbursable reports whether the bank partner actually moves money for this
// payment.
func disbursable(payment models.Payment) bool {
	switch payment.TransactionType {
	case models.TransactionTypeStandard, models.TransactionTypeAdhoc, models.TransactionTypeLegacy:
		return payment.Amount.IsPositive()
	}
	return false
}

func prenoteTransCode(accountType string) int {
	if accountType == "Savings" {
		return ach.TransCodeSavingsPrenote
	}
	return ach.TransCodeCheckingPrenote
}

func creditTransCode(accountType string) int {
	if accountType == "Savings" {
		return ach.TransCodeSavingsCredit
	}
	return ach.TransCodeCheckingCredit
}
