package extracts

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	ers "github.com/Badsworth/pfml-scripts-sub004/pub/errors"
	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

// Feed names as they appear after the timestamp prefix in extract filenames.
const (
	feedClaimants         = "Employee_feed.csv"
	feedRequestedAbsences = "VBI_REQUESTEDABSENCE_SOM.csv"
	feedPaymentLines      = "vpei.csv"
	feedPaymentDetails    = "vpeipaymentdetails.csv"
	feedClaimDetails      = "vpeiclaimdetails.csv"
)

// columnMapping pairs an extract header column with the staging table column
// its values land in.
type columnMapping struct {
	extract string
	staging string
}

// stagingTarget describes where one feed's rows are staged.
type stagingTarget struct {
	table    string
	fileType models.ReferenceFileType
	columns  []columnMapping
}

var stagingTargets = map[string]stagingTarget{
	feedClaimants: {
		table:    "staging_claimants",
		fileType: models.FileTypeClaimantExtract,
		columns: []columnMapping{
			{"CUSTOMERNO", "fineos_customer_number"},
			{"FIRSTNAMES", "first_name"},
			{"LASTNAME", "last_name"},
			{"ABSENCE_CASENUMBER", "absence_case_number"},
			{"SORTCODE", "routing_number"},
			{"ACCOUNTNO", "account_number"},
			{"ACCOUNTTYPE", "account_type"},
			{"PAYMENTMETHOD", "payment_method"},
		},
	},
	feedRequestedAbsences: {
		table:    "staging_requested_absences",
		fileType: models.FileTypeClaimantExtract,
		columns: []columnMapping{
			{"LEAVEREQUEST_ID", "absence_case_number"},
			{"ABSENCE_CASENUMBER", "claim_absence_id"},
			{"ABSENCEPERIOD_START", "period_start"},
			{"ABSENCEPERIOD_END", "period_end"},
		},
	},
	feedPaymentLines: {
		table:    "staging_payment_lines",
		fileType: models.FileTypePaymentExtract,
		columns: []columnMapping{
			{"C", "c_value"},
			{"I", "i_value"},
			{"EVENTTYPE", "event_type"},
			{"AMOUNT_MONAMT", "amount"},
			{"PAYMENTSTARTP", "period_start"},
			{"PAYMENTENDPER", "period_end"},
			{"PAYMENTMETHOD", "payment_method"},
			{"EXTRACTIONDATE", "extraction_date"},
		},
	},
	feedPaymentDetails: {
		table:    "staging_payment_details",
		fileType: models.FileTypePaymentExtract,
		columns: []columnMapping{
			{"PECLASSID", "c_value"},
			{"PEINDEXID", "i_value"},
			{"PAYMENTSTARTP", "period_start"},
			{"PAYMENTENDPER", "period_end"},
			{"AMOUNT_MONAMT", "amount"},
			{"BUSINESSNETBE", "business_net_amount"},
		},
	},
	feedClaimDetails: {
		table:    "staging_claim_details",
		fileType: models.FileTypePaymentExtract,
		columns: []columnMapping{
			{"PECLASSID", "c_value"},
			{"PEINDEXID", "i_value"},
			{"ABSENCECASENU", "absence_case_number"},
		},
	},
}

// headerIndexes maps each required extract column to its position in the
// header row. A missing required column fails the file; extra columns are
// reported once so new upstream columns surface in the logs.
func headerIndexes(target stagingTarget, fileName string, header []string) (indexes []int, extra []string, err error) {
	position := make(map[string]int, len(header))
	for i, column := range header {
		position[column] = i
	}

	var missing []string
	for _, mapping := range target.columns {
		i, ok := position[mapping.extract]
		if !ok {
			missing = append(missing, mapping.extract)
			continue
		}
		indexes = append(indexes, i)
		delete(position, mapping.extract)
	}
	if len(missing) > 0 {
		return nil, nil, &ers.MissingRequiredColumns{FileName: fileName, Columns: missing}
	}

	for column := range position {
		extra = append(extra, column)
	}

	return indexes, extra, nil
}

// A stagingImporter is not safe for concurrent use by multiple goroutines.
// It should be scoped to a single *sql.Tx.
type stagingImporter struct {
	logger logrus.FieldLogger
	target stagingTarget

	referenceFileID uint
	importRunID     uint

	inprogress *sql.Stmt

	pendingQueries    int
	maxPendingQueries int
}

func (importer *stagingImporter) do(ctx context.Context, tx *sql.Tx, values []string) error {
	if importer.inprogress == nil {
		if err := importer.refreshStatement(ctx, tx); err != nil {
			return errors.Wrap(err, "failed to refresh statement")
		}
	}

	if importer.pendingQueries >= importer.maxPendingQueries {
		if err := importer.flush(ctx); err != nil {
			return errors.Wrap(err, "failed to flush statement")
		}
		if err := importer.refreshStatement(ctx, tx); err != nil {
			return errors.Wrap(err, "failed to refresh statement")
		}
		importer.pendingQueries = 0
	}

	args := make([]interface{}, 0, len(values)+2)
	for _, v := range values {
		args = append(args, v)
	}
	args = append(args, importer.referenceFileID, importer.importRunID)

	if _, err := importer.inprogress.Exec(args...); err != nil {
		err = errors.Wrapf(err, "could not stage row into %s", importer.target.table)
		importer.logger.Error(err)
		return err
	}
	importer.pendingQueries++
	return nil
}

func (importer *stagingImporter) flush(ctx context.Context) error {
	stmt := importer.inprogress
	if stmt == nil {
		importer.logger.Warn("No statement to flush.")
		return nil
	}

	if _, err := stmt.Exec(); err != nil {
		return err
	}

	if err := stmt.Close(); err != nil {
		return err
	}
	importer.inprogress = nil

	return nil
}

func (importer *stagingImporter) refreshStatement(ctx context.Context, tx *sql.Tx) error {
	columns := make([]string, 0, len(importer.target.columns)+2)
	for _, mapping := range importer.target.columns {
		columns = append(columns, mapping.staging)
	}
	columns = append(columns, "reference_file_id", "import_run_id")

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(importer.target.table, columns...))
	if err != nil {
		return err
	}

	importer.inprogress = stmt
	return nil
}
