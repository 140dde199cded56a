// Package returns reconciles bank return files against the payment and EFT
// ledgers. Record-level failures become pub_errors rows and never abort the
// file; file-level failures roll back and relocate the file to the error
// area.
package returns

import (
	"context"
	"database/sql"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Badsworth/pfml-scripts-sub004/conf"
	"github.com/Badsworth/pfml-scripts-sub004/pub/constants"
	ers "github.com/Badsworth/pfml-scripts-sub004/pub/errors"
	"github.com/Badsworth/pfml-scripts-sub004/pub/files"
	"github.com/Badsworth/pfml-scripts-sub004/pub/metrics"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models/postgres"
)

// Config holds the storage areas return files move between.
type Config struct {
	AchReceivedDir   string `conf:"PUB_ACH_RETURN_RECEIVED_DIR"`
	CheckReceivedDir string `conf:"PUB_CHECK_RETURN_RECEIVED_DIR"`
	ProcessedDir     string `conf:"PUB_RETURN_PROCESSED_DIR"`
	ErrorDir         string `conf:"PUB_RETURN_ERROR_DIR"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := conf.Checkout(&cfg); err != nil {
		return cfg, errors.Wrap(err, "could not load return config")
	}
	return cfg, nil
}

// Processor reconciles one directory of return files per invocation. Each
// file is processed in its own transaction.
type Processor struct {
	Logger  logrus.FieldLogger
	DB      *sql.DB
	Handler files.FileHandler
	Config  Config
}

// Result summarizes one reconciliation run.
type Result struct {
	ImportRunID   uint
	Files         int
	FailedFiles   int
	Completed     int
	Rejected      int
	Outstanding   int
	EftApproved   int
	EftRejected   int
	RecordErrors  int
}

// fileProcessor reconciles one open return file inside its transaction.
type fileProcessor func(ctx context.Context, repo models.Repository, location string,
	refFileID, runID uint, result *Result) error

// processDir runs every file in the directory through the given processor.
// A failed file is relocated to the error area and the remaining files are
// still attempted.
func (p *Processor) processDir(ctx context.Context, source string, dir string,
	fileType models.ReferenceFileType, process fileProcessor) (*Result, error) {

	close := metrics.NewChild(ctx, source)
	defer close()

	runRepo := postgres.NewRepository(p.DB)
	runID, err := runRepo.CreateImportRun(ctx, models.ImportRun{
		UUID:      uuid.NewRandom().String(),
		Source:    source,
		Status:    constants.ImportInprog,
		StartedAt: time.Now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create import run")
	}
	result := &Result{ImportRunID: runID}

	infos, err := p.Handler.ListFiles(ctx, dir)
	if err != nil {
		return nil, p.failRun(ctx, runID, errors.Wrapf(err, "could not list return files in %s", dir))
	}

	for _, info := range infos {
		if err := p.checkNotProcessed(ctx, runRepo, fileType, info.Location); err != nil {
			var already *ers.ReferenceFileAlreadyProcessed
			if !errors.As(err, &already) {
				return nil, p.failRun(ctx, runID, err)
			}
			p.Logger.Infof("Return file %s has already been processed, skipping it.", already.FileLocation)
			continue
		}

		if err := p.processFile(ctx, info.Location, fileType, runID, process, result); err != nil {
			p.Logger.Errorf("Could not process return file %s: %s", info.Location, err)
			p.relocate(ctx, info.Location, p.Config.ErrorDir)
			result.FailedFiles++
			continue
		}

		p.relocate(ctx, info.Location, p.Config.ProcessedDir)
		result.Files++
	}

	if err := runRepo.UpdateImportRunStatus(ctx, runID, constants.ImportComplete); err != nil {
		return nil, errors.Wrap(err, "could not mark import run complete")
	}

	p.Logger.WithFields(logrus.Fields{
		"importRunID":  runID,
		"files":        result.Files,
		"failedFiles":  result.FailedFiles,
		"completed":    result.Completed,
		"rejected":     result.Rejected,
		"recordErrors": result.RecordErrors,
	}).Info("Return files processed.")
	return result, nil
}

func (p *Processor) processFile(ctx context.Context, location string, fileType models.ReferenceFileType,
	runID uint, process fileProcessor, result *Result) error {

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "could not begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	repo := postgres.NewRepositoryTx(tx)
	refFileID, err := repo.CreateReferenceFile(ctx, models.ReferenceFile{
		FileLocation:       location,
		FileType:           fileType,
		CreatedImportRunID: runID,
	})
	if err != nil {
		return errors.Wrap(err, "could not create reference file")
	}

	if err := process(ctx, repo, location, refFileID, runID, result); err != nil {
		return err
	}

	if err := repo.MarkReferenceFileProcessed(ctx, refFileID, runID); err != nil {
		return errors.Wrap(err, "could not mark reference file processed")
	}
	return errors.Wrap(tx.Commit(), "could not commit transaction")
}

// checkNotProcessed enforces file-level idempotence: a location with a
// registered reference file must not be reconciled twice.
func (p *Processor) checkNotProcessed(ctx context.Context, repo models.Repository,
	fileType models.ReferenceFileType, location string) error {

	exists, err := repo.GetReferenceFileExists(ctx, fileType, location)
	if err != nil {
		return errors.Wrapf(err, "could not check reference file for %s", location)
	}
	if exists {
		return &ers.ReferenceFileAlreadyProcessed{FileLocation: location}
	}
	return nil
}

func (p *Processor) relocate(ctx context.Context, location, destDir string) {
	if _, err := p.Handler.MoveFile(ctx, location, destDir); err != nil {
		p.Logger.Errorf("Could not move %s to %s: %s", location, destDir, err)
	}
}

func (p *Processor) failRun(ctx context.Context, runID uint, cause error) error {
	repo := postgres.NewRepository(p.DB)
	if err := repo.UpdateImportRunStatus(ctx, runID, constants.ImportFail); err != nil {
		p.Logger.Errorf("Could not mark import run %d failed: %s", runID, err)
	}
	return cause
}

// recordError persists one per-record reconciliation failure.
func recordError(ctx context.Context, repo models.Repository, result *Result, pubError models.PubError) error {
	if _, err := repo.CreatePubError(ctx, pubError); err != nil {
		return errors.Wrap(err, "could not record pub error")
	}
	result.RecordErrors++
	return nil
}
