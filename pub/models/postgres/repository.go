package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"github.com/Badsworth/pfml-scripts-sub004/pub/models"
)

type queryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type executable interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	sqlFlavor = sqlbuilder.PostgreSQL
)

// Ensure Repository satisfies the interface
var _ models.Repository = &Repository{}

type Repository struct {
	queryable
	executable
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db, db}
}

func NewRepositoryTx(tx *sql.Tx) *Repository {
	return &Repository{tx, tx}
}

func (r *Repository) CreateImportRun(ctx context.Context, run models.ImportRun) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO import_runs
		(uuid, source, status, started_at) VALUES
		(%s, %s, %s, %s) RETURNING id`,
		run.UUID, run.Source, run.Status, run.StartedAt).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) UpdateImportRunStatus(ctx context.Context, id uint, status string) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("import_runs")
	ub.Set(
		ub.Assign("status", status),
		"finished_at = NOW()",
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("import run %d not updated, no row found", id)
	}

	return nil
}

func (r *Repository) GetReferenceFileExists(ctx context.Context, fileType models.ReferenceFileType, location string) (bool, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("COUNT(1)").From("reference_files")
	sb.Where(
		sb.Equal("file_type_id", fileType.ID),
		sb.Equal("file_location", location),
	)

	query, args := sb.Build()

	var count int
	if err := r.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *Repository) CreateReferenceFile(ctx context.Context, rf models.ReferenceFile) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO reference_files
		(file_location, file_type_id, created_import_run_id) VALUES
		(%s, %s, %s) RETURNING id`,
		rf.FileLocation, rf.FileType.ID, rf.CreatedImportRunID).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) MarkReferenceFileProcessed(ctx context.Context, id uint, importRunID uint) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("reference_files")
	ub.Set(ub.Assign("processed_import_run_id", importRunID))
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("reference file %d not updated, no row found", id)
	}

	return nil
}

func (r *Repository) GetEmployee(ctx context.Context, id uint) (*models.Employee, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "fineos_customer_number", "first_name", "last_name")
	sb.From("employees")
	sb.Where(sb.Equal("id", id))

	var employee models.Employee
	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&employee.ID, &employee.FineosCustomerNumber,
		&employee.FirstName, &employee.LastName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &employee, nil
}

func (r *Repository) GetAbsencePeriodsForClaim(ctx context.Context, claimID uint) ([]models.AbsencePeriod, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "claim_id", "absence_case_id", "period_start", "period_end")
	sb.From("absence_periods")
	sb.Where(sb.Equal("claim_id", claimID))
	sb.OrderBy("period_start")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []models.AbsencePeriod
	for rows.Next() {
		var p models.AbsencePeriod
		if err = rows.Scan(&p.ID, &p.ClaimID, &p.AbsenceCaseID, &p.PeriodStart, &p.PeriodEnd); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return periods, nil
}

func (r *Repository) GetMaximumWeeklyBenefitAmounts(ctx context.Context) ([]models.MaximumWeeklyBenefitAmount, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("effective_date", "amount")
	sb.From("maximum_weekly_benefit_amounts")
	sb.OrderBy("effective_date")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var maxima []models.MaximumWeeklyBenefitAmount
	for rows.Next() {
		var m models.MaximumWeeklyBenefitAmount
		if err = rows.Scan(&m.EffectiveDate, &m.Amount); err != nil {
			return nil, err
		}
		maxima = append(maxima, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return maxima, nil
}
