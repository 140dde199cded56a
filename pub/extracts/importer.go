package extracts

import (
	"context"
	"database/sql"
	"encoding/csv"
	"io"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Badsworth/pfml-scripts-sub004/pub/constants"
	ers "github.com/Badsworth/pfml-scripts-sub004/pub/errors"
	"github.com/Badsworth/pfml-scripts-sub004/pub/files"
	"github.com/Badsworth/pfml-scripts-sub004/pub/metrics"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models/postgres"
)

// Importer runs one extract ingestion step: discover the newest complete
// date group in the received area, stage its rows, convert them into domain
// records, and relocate the source files.
type Importer struct {
	Logger  logrus.FieldLogger
	Handler files.FileHandler
	DB      *sql.DB
	Config  Config
	Family  Family

	// CopyIn batch size. Zero means the default.
	MaxPendingQueries int
}

// ImportResult summarizes one ingestion run.
type ImportResult struct {
	GroupPrefix   string
	ImportRunID   uint
	StagedRows    int
	Payments      int
	SkippedGroups int
}

const defaultMaxPendingQueries = 500

// ImportExtracts processes at most one date group per invocation. Re-running
// against an already-processed group is a no-op.
func (imp *Importer) ImportExtracts(ctx context.Context) (*ImportResult, error) {
	close := metrics.NewChild(ctx, "ImportExtracts")
	defer close()

	infos, err := imp.Handler.ListFiles(ctx, imp.Config.ReceivedDir)
	if err != nil {
		return nil, errors.Wrap(err, "could not list received extract files")
	}

	var metadata []extractFileMetadata
	for _, info := range infos {
		m, err := parseExtractFilename(info.Name)
		if err != nil {
			// An unknown file in this dir isn't a blocker.
			imp.Logger.Warnf("Unknown file found: %s. Skipping.", info.Name)
			continue
		}
		m.location = info.Location
		metadata = append(metadata, m)
	}

	groups := groupByTimestamp(metadata)
	if len(groups) == 0 {
		imp.Logger.Info("No extract date groups found.")
		return &ImportResult{}, nil
	}

	result := &ImportResult{}

	// The newest complete group is the one we process. Everything else, both
	// incomplete groups and complete groups it supersedes, is archived to the
	// skipped area so a later run never ingests stale data.
	var chosen *dateGroup
	for _, group := range groups {
		if chosen == nil {
			if err := group.complete(imp.Family); err != nil {
				imp.Logger.Warnf("Archiving extract group to skipped area: %s", err)
				imp.skipGroup(ctx, group)
				result.SkippedGroups++
				continue
			}
			chosen = group
			continue
		}

		imp.Logger.Infof("Extract group %s is superseded by %s, archiving to skipped area.",
			group.prefix, chosen.prefix)
		imp.skipGroup(ctx, group)
		result.SkippedGroups++
	}
	if chosen == nil {
		imp.Logger.Info("No complete extract date group found.")
		return result, nil
	}
	result.GroupPrefix = chosen.prefix

	if err := imp.checkGroupNotProcessed(ctx, chosen); err != nil {
		var already *ers.ReferenceFileAlreadyProcessed
		if !errors.As(err, &already) {
			return nil, err
		}
		imp.Logger.Infof("Extract group %s has already been processed, archiving to skipped area.", chosen.prefix)
		imp.skipGroup(ctx, chosen)
		result.SkippedGroups++
		return result, nil
	}

	if err := imp.processGroup(ctx, chosen, result); err != nil {
		imp.relocateGroup(ctx, chosen, imp.Config.ErrorDir)
		return nil, err
	}

	imp.relocateGroup(ctx, chosen, imp.Config.ProcessedDir)
	return result, nil
}

func (imp *Importer) checkGroupNotProcessed(ctx context.Context, group *dateGroup) error {
	repo := postgres.NewRepository(imp.DB)
	for _, feed := range imp.Family.Feeds {
		m := group.files[feed]
		exists, err := repo.GetReferenceFileExists(ctx, stagingTargets[feed].fileType, m.location)
		if err != nil {
			return errors.Wrapf(err, "could not check reference file for %s", m.location)
		}
		if exists {
			return &ers.ReferenceFileAlreadyProcessed{FileLocation: m.location}
		}
	}
	return nil
}

// processGroup stages and converts one date group inside a single
// transaction. Any failure rolls the whole group back.
func (imp *Importer) processGroup(ctx context.Context, group *dateGroup, result *ImportResult) error {
	runRepo := postgres.NewRepository(imp.DB)
	runID, err := runRepo.CreateImportRun(ctx, models.ImportRun{
		UUID:      uuid.NewRandom().String(),
		Source:    "import-extracts",
		Status:    constants.ImportInprog,
		StartedAt: time.Now(),
	})
	if err != nil {
		return errors.Wrap(err, "could not create import run")
	}
	result.ImportRunID = runID

	tx, err := imp.DB.BeginTx(ctx, nil)
	if err != nil {
		return imp.failRun(ctx, runID, errors.Wrap(err, "could not begin transaction"))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	repo := postgres.NewRepositoryTx(tx)
	for _, feed := range imp.Family.Feeds {
		m := group.files[feed]
		staged, err := imp.stageFile(ctx, tx, repo, m, runID)
		if err != nil {
			return imp.failRun(ctx, runID, errors.Wrapf(err, "failed to stage %s", m.location))
		}
		result.StagedRows += staged
	}

	converted, err := convertStaged(ctx, repo, imp.Logger, group.timestamp, runID)
	if err != nil {
		return imp.failRun(ctx, runID, errors.Wrapf(err, "failed to convert group %s", group.prefix))
	}
	result.Payments = converted

	if err := tx.Commit(); err != nil {
		return imp.failRun(ctx, runID, errors.Wrap(err, "could not commit transaction"))
	}

	if err := runRepo.UpdateImportRunStatus(ctx, runID, constants.ImportComplete); err != nil {
		return errors.Wrap(err, "could not mark import run complete")
	}

	imp.Logger.WithFields(logrus.Fields{
		"group":       group.prefix,
		"importRunID": runID,
		"stagedRows":  result.StagedRows,
		"payments":    result.Payments,
	}).Info("Extract group processed.")
	return nil
}

// stageFile copies one extract file's rows into its staging table and marks
// its reference file processed. Runs inside the group transaction.
func (imp *Importer) stageFile(ctx context.Context, tx *sql.Tx, repo *postgres.Repository, m extractFileMetadata, runID uint) (int, error) {
	close := metrics.NewChild(ctx, "stageFile-"+m.feedName)
	defer close()

	target := stagingTargets[m.feedName]
	refFileID, err := repo.CreateReferenceFile(ctx, models.ReferenceFile{
		FileLocation:       m.location,
		FileType:           target.fileType,
		CreatedImportRunID: runID,
	})
	if err != nil {
		return 0, errors.Wrap(err, "could not create reference file")
	}

	rc, err := imp.Handler.OpenFile(ctx, m.location)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	header, err := reader.Read()
	if err != nil {
		return 0, errors.Wrapf(err, "could not read header of %s", m.location)
	}

	indexes, extra, err := headerIndexes(target, m.feedName, header)
	if err != nil {
		return 0, err
	}
	if len(extra) > 0 {
		imp.Logger.Warnf("Extract file %s carries unmapped columns %v, ignoring them.", m.feedName, extra)
	}

	maxPending := imp.MaxPendingQueries
	if maxPending == 0 {
		maxPending = defaultMaxPendingQueries
	}
	importer := &stagingImporter{
		logger:            imp.Logger,
		target:            target,
		referenceFileID:   refFileID,
		importRunID:       runID,
		maxPendingQueries: maxPending,
	}

	rows := 0
	values := make([]string, len(indexes))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, errors.Wrapf(err, "malformed CSV row in %s", m.location)
		}

		for i, idx := range indexes {
			values[i] = record[idx]
		}
		if err := importer.do(ctx, tx, values); err != nil {
			return 0, err
		}
		rows++
	}

	if err := importer.flush(ctx); err != nil {
		return 0, errors.Wrapf(err, "could not flush staged rows for %s", m.location)
	}

	if err := repo.MarkReferenceFileProcessed(ctx, refFileID, runID); err != nil {
		return 0, errors.Wrap(err, "could not mark reference file processed")
	}

	imp.Logger.Infof("Staged %d rows from %s into %s.", rows, m.feedName, target.table)
	return rows, nil
}

func (imp *Importer) failRun(ctx context.Context, runID uint, cause error) error {
	repo := postgres.NewRepository(imp.DB)
	if err := repo.UpdateImportRunStatus(ctx, runID, constants.ImportFail); err != nil {
		imp.Logger.Errorf("Could not mark import run %d failed: %s", runID, err)
	}
	return cause
}

func (imp *Importer) skipGroup(ctx context.Context, group *dateGroup) {
	imp.relocateGroup(ctx, group, imp.Config.SkippedDir)
}

// relocateGroup moves every file of a group; a failed move is logged and the
// remaining files are still attempted.
func (imp *Importer) relocateGroup(ctx context.Context, group *dateGroup, destDir string) {
	for _, m := range group.files {
		if _, err := imp.Handler.MoveFile(ctx, m.location, destDir); err != nil {
			imp.Logger.Errorf("Could not move %s to %s: %s", m.location, destDir, err)
		}
	}
}
