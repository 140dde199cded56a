package extracts

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Badsworth/pfml-scripts-sub004/pub/files"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

const testGroupPrefix = "2021-02-20-09-00-00"

var feedHeaders = map[string]string{
	feedClaimants:         "CUSTOMERNO,FIRSTNAMES,LASTNAME,ABSENCE_CASENUMBER,SORTCODE,ACCOUNTNO,ACCOUNTTYPE,PAYMENTMETHOD",
	feedRequestedAbsences: "LEAVEREQUEST_ID,ABSENCE_CASENUMBER,ABSENCEPERIOD_START,ABSENCEPERIOD_END",
	feedPaymentLines:      "C,I,EVENTTYPE,AMOUNT_MONAMT,PAYMENTSTARTP,PAYMENTENDPER,PAYMENTMETHOD,EXTRACTIONDATE",
	feedPaymentDetails:    "PECLASSID,PEINDEXID,PAYMENTSTARTP,PAYMENTENDPER,AMOUNT_MONAMT,BUSINESSNETBE",
	feedClaimDetails:      "PECLASSID,PEINDEXID,ABSENCECASENU",
}

func testImporter(t *testing.T) (*Importer, string) {
	dir := t.TempDir()
	received := filepath.Join(dir, "received")
	require.NoError(t, os.MkdirAll(received, 0750))

	logger, _ := test.NewNullLogger()
	imp := &Importer{
		Logger:  logger,
		Handler: &files.LocalFileHandler{},
		Config: Config{
			ReceivedDir:  received,
			ProcessedDir: filepath.Join(dir, "processed"),
			SkippedDir:   filepath.Join(dir, "skipped"),
			ErrorDir:     filepath.Join(dir, "error"),
		},
		Family: DefaultFamily(),
	}
	return imp, dir
}

func writeFeedFile(t *testing.T, dir, prefix, feed string, rows ...string) {
	lines := append([]string{feedHeaders[feed]}, rows...)
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, prefix+"-"+feed), []byte(content), 0640))
}

func dirNames(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

// A group missing one of its feeds must be archived without touching the
// database; re-delivery of the full group is the only way forward.
func TestImportExtractsIncompleteGroup(t *testing.T) {
	imp, dir := testImporter(t)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	imp.DB = db

	for _, feed := range []string{feedClaimants, feedRequestedAbsences, feedPaymentLines, feedPaymentDetails} {
		writeFeedFile(t, imp.Config.ReceivedDir, testGroupPrefix, feed)
	}

	result, err := imp.ImportExtracts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.SkippedGroups)
	assert.Zero(t, result.StagedRows)
	assert.Empty(t, result.GroupPrefix)
	assert.Empty(t, dirNames(t, imp.Config.ReceivedDir))
	assert.Len(t, dirNames(t, filepath.Join(dir, "skipped")), 4)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A group whose files already carry a reference_files row is a no-op; the
// files are archived and nothing is staged. An older stray group is archived
// as superseded on the same run.
func TestImportExtractsAlreadyProcessedGroup(t *testing.T) {
	imp, dir := testImporter(t)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	imp.DB = db

	for _, feed := range imp.Family.Feeds {
		writeFeedFile(t, imp.Config.ReceivedDir, testGroupPrefix, feed)
	}
	writeFeedFile(t, imp.Config.ReceivedDir, "2021-02-19-09-00-00", feedPaymentLines)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(1) FROM reference_files")).
		WithArgs(int64(models.FileTypeClaimantExtract.ID),
			filepath.Join(imp.Config.ReceivedDir, testGroupPrefix+"-"+feedClaimants)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	result, err := imp.ImportExtracts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.SkippedGroups)
	assert.Zero(t, result.StagedRows)
	assert.Equal(t, testGroupPrefix, result.GroupPrefix)
	assert.Empty(t, dirNames(t, imp.Config.ReceivedDir))
	assert.Len(t, dirNames(t, filepath.Join(dir, "skipped")), 6)
	assert.Empty(t, dirNames(t, filepath.Join(dir, "processed")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A complete unprocessed group is staged in one transaction and relocated to
// the processed area.
func TestImportExtractsCompleteGroup(t *testing.T) {
	imp, dir := testImporter(t)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	imp.DB = db

	writeFeedFile(t, imp.Config.ReceivedDir, testGroupPrefix, feedClaimants,
		"339,Jane,Doe,NTN-001-ABS-01,231380104,12345678,Checking,Elec Funds Transfer")
	for _, feed := range []string{feedRequestedAbsences, feedPaymentLines, feedPaymentDetails, feedClaimDetails} {
		writeFeedFile(t, imp.Config.ReceivedDir, testGroupPrefix, feed)
	}

	for _, feed := range imp.Family.Feeds {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(1) FROM reference_files")).
			WithArgs(int64(stagingTargets[feed].fileType.ID),
				filepath.Join(imp.Config.ReceivedDir, testGroupPrefix+"-"+feed)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	}

	mock.ExpectQuery("INSERT INTO import_runs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectBegin()

	for i, feed := range imp.Family.Feeds {
		refFileID := int64(11 + i)
		mock.ExpectQuery("INSERT INTO reference_files").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(refFileID))

		if feed == feedClaimants {
			prep := mock.ExpectPrepare(`COPY "staging_claimants"`)
			prep.ExpectExec().
				WithArgs("339", "Jane", "Doe", "NTN-001-ABS-01", "231380104", "12345678",
					"Checking", "Elec Funds Transfer", refFileID, int64(7)).
				WillReturnResult(sqlmock.NewResult(0, 1))
			prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
		}

		mock.ExpectExec("UPDATE reference_files").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	for _, table := range []string{"staging_claimants", "staging_requested_absences",
		"staging_claim_details", "staging_payment_details", "staging_payment_lines"} {
		mock.ExpectQuery("FROM " + table).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
	}

	mock.ExpectCommit()
	mock.ExpectExec("UPDATE import_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := imp.ImportExtracts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint(7), result.ImportRunID)
	assert.Equal(t, 1, result.StagedRows)
	assert.Zero(t, result.SkippedGroups)
	assert.Empty(t, dirNames(t, imp.Config.ReceivedDir))
	assert.Len(t, dirNames(t, filepath.Join(dir, "processed")), 5)
	assert.NoError(t, mock.ExpectationsWereMet())
}
