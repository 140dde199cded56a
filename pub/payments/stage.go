package payments

import (
	"context"
	"database/sql"
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
	"github.com/Badsworth/pfml-scripts-sub004/pub/writeback"
)

// Config holds the post-processing knobs.
type Config struct {
	// Every Nth cap-passing payment is diverted to the audit report. Zero
	// disables sampling.
	AuditSampleInterval int `conf:"PUB_AUDIT_SAMPLE_INTERVAL" conf_default:"25"`

	// Where audit reports land. A local path or s3:// URI.
	ReportDir string `conf:"PUB_PAYMENT_REPORT_DIR"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := conf.Checkout(&cfg); err != nil {
		return cfg, errors.Wrap(err, "could not load payment processing config")
	}
	return cfg, nil
}

// Processor runs the post-processing rule stages over staged payments. Each
// stage pulls its input from the ledger, processes the cohort in one
// transaction, and appends the outcome states.
type Processor struct {
	Logger  logrus.FieldLogger
	DB      *sql.DB
	Handler files.FileHandler
	Config  Config
}

// Result summarizes one post-processing run.
type Result struct {
	ImportRunID    uint
	DateMismatched int
	CapRejected    int
	Sampled        int
	Ready          int
	AuditReport    string
}

// ProcessPayments runs the date mismatch stage and then the weekly cap and
// audit sampling stage. Survivors land ready for the transaction file
// creator.
func (p *Processor) ProcessPayments(ctx context.Context) (*Result, error) {
	close := metrics.NewChild(ctx, "ProcessPayments")
	defer close()

	runRepo := postgres.NewRepository(p.DB)
	runID, err := runRepo.CreateImportRun(ctx, models.ImportRun{
		UUID:      uuid.NewRandom().String(),
		Source:    "process-payments",
		Status:    constants.ImportInprog,
		StartedAt: time.Now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create import run")
	}

	result := &Result{ImportRunID: runID}
	if err := p.runStage(ctx, runID, "DateMismatchStage", result, p.dateMismatchStage); err != nil {
		return nil, p.failRun(ctx, runID, err)
	}
	if err := p.runStage(ctx, runID, "WeeklyCapStage", result, p.weeklyCapStage); err != nil {
		return nil, p.failRun(ctx, runID, err)
	}

	if err := runRepo.UpdateImportRunStatus(ctx, runID, constants.ImportComplete); err != nil {
		return nil, errors.Wrap(err, "could not mark import run complete")
	}

	p.Logger.WithFields(logrus.Fields{
		"importRunID":    runID,
		"dateMismatched": result.DateMismatched,
		"capRejected":    result.CapRejected,
		"sampled":        result.Sampled,
		"ready":          result.Ready,
	}).Info("Payment post-processing complete.")
	return result, nil
}

type stageFunc func(ctx context.Context, repo models.Repository, runID uint, result *Result) error

// runStage wraps one rule stage in its own transaction.
func (p *Processor) runStage(ctx context.Context, runID uint, name string, result *Result, stage stageFunc) error {
	close := metrics.NewChild(ctx, name)
	defer close()

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "could not begin transaction for %s", name)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := stage(ctx, postgres.NewRepositoryTx(tx), runID, result); err != nil {
		return errors.Wrapf(err, "%s failed", name)
	}
	return errors.Wrapf(tx.Commit(), "could not commit %s", name)
}

// dateMismatchStage rejects staged payments whose period overlaps no absence
// period on their claim; survivors move on to the cap check.
func (p *Processor) dateMismatchStage(ctx context.Context, repo models.Repository, runID uint, result *Result) error {
	payments, err := paymentsInState(ctx, repo, models.StatePaymentStaged)
	if err != nil {
		return err
	}

	for _, payment := range payments {
		issue, err := checkDateMismatch(ctx, repo, payment)
		if err != nil {
			return err
		}

		if issue != nil {
			if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, payment.ID,
				models.FlowPayment, models.StatePaymentFailedDateMismatch,
				models.BuildOutcome("Payment rejected by date mismatch check", *issue), runID); err != nil {
				return err
			}
			if err := writeback.Queue(ctx, repo, payment.ID, models.WritebackStatusFailedDateMismatch, runID); err != nil {
				return err
			}
			result.DateMismatched++
			continue
		}

		if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, payment.ID,
			models.FlowPayment, models.StatePaymentPostProcessing,
			models.BuildOutcome("Payment passed date mismatch check"), runID); err != nil {
			return err
		}
	}
	return nil
}

// weeklyCapStage evaluates the employee-wide weekly cap, then routes passing
// payments through the audit sampler.
func (p *Processor) weeklyCapStage(ctx context.Context, repo models.Repository, runID uint, result *Result) error {
	payments, err := paymentsInState(ctx, repo, models.StatePaymentPostProcessing)
	if err != nil {
		return err
	}
	if len(payments) == 0 {
		return nil
	}

	maximums, err := repo.GetMaximumWeeklyBenefitAmounts(ctx)
	if err != nil {
		return errors.Wrap(err, "could not load statutory maximums")
	}

	processor := &CapProcessor{Logger: p.Logger, Cache: NewMaximumWeeklyBenefitCache(maximums)}
	decisions, err := processor.Evaluate(ctx, repo, payments)
	if err != nil {
		return err
	}

	sampler := newAuditSampler(p.Config.AuditSampleInterval)
	for _, decision := range decisions {
		if !decision.Payable {
			if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, decision.Payment.ID,
				models.FlowPayment, models.StatePaymentFailedWeeklyCap,
				models.BuildOutcome("Payment rejected by maximum weekly benefit check", decision.Issues...), runID); err != nil {
				return err
			}
			if err := writeback.Queue(ctx, repo, decision.Payment.ID, models.WritebackStatusFailedWeeklyCap, runID); err != nil {
				return err
			}
			result.CapRejected++
			continue
		}

		if sampler.sample(decision.Payment) {
			if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, decision.Payment.ID,
				models.FlowPayment, models.StatePaymentSampledForAudit,
				models.BuildOutcome("Payment sampled for audit report"), runID); err != nil {
				return err
			}
			if err := writeback.Queue(ctx, repo, decision.Payment.ID, models.WritebackStatusPendingAudit, runID); err != nil {
				return err
			}
			result.Sampled++
			continue
		}

		if _, err := statelog.AppendTerminalState(ctx, repo, models.EntityTypePayment, decision.Payment.ID,
			models.FlowPayment, models.StatePaymentReadyForPub,
			models.BuildOutcome("Payment cleared for transaction file"), runID); err != nil {
			return err
		}
		result.Ready++
	}

	if len(sampler.sampled) > 0 {
		location, err := writeAuditReport(ctx, p.Handler, p.Config.ReportDir, time.Now(), sampler.sampled)
		if err != nil {
			return err
		}
		refFileID, err := repo.CreateReferenceFile(ctx, models.ReferenceFile{
			FileLocation:       location,
			FileType:           models.FileTypePaymentAuditReport,
			CreatedImportRunID: runID,
		})
		if err != nil {
			return errors.Wrap(err, "could not register audit report")
		}
		if err := repo.MarkReferenceFileProcessed(ctx, refFileID, runID); err != nil {
			return errors.Wrap(err, "could not mark audit report processed")
		}
		result.AuditReport = location
	}
	return nil
}

func paymentsInState(ctx context.Context, repo models.Repository, state models.EndState) ([]models.Payment, error) {
	ids, err := statelog.AllEntitiesInState(ctx, repo, models.EntityTypePayment, models.FlowPayment, state)
	if err != nil {
		return nil, errors.Wrapf(err, "could not query payments in state %q", state.Description)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	payments, err := repo.GetPaymentsByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "could not load payments")
	}
	return payments, nil
}

func (p *Processor) failRun(ctx context.Context, runID uint, cause error) error {
	repo := postgres.NewRepository(p.DB)
	if err := repo.UpdateImportRunStatus(ctx, runID, constants.ImportFail); err != nil {
		p.Logger.Errorf("Could not mark import run %d failed: %s", runID, err)
	}
	return cause
}
